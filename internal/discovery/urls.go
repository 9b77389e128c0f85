package discovery

import (
	"fmt"
	"net/url"
)

// previewQuery is fixed: 300x300, aspect preserved, JPEG.
const previewQuery = "resolution=300x300&keep_aspect_ratio=true&format=jpg"

// PreviewURL is the snapshot endpoint for a named encoder channel.
func PreviewURL(domain, address, channelID string) string {
	return fmt.Sprintf("https://%s/epiphan/https/%s/api/v2.0/channels/%s/preview?%s",
		domain, address, url.PathEscape(channelID), previewQuery)
}

// NDIPreviewURL is the snapshot endpoint for an indexed NDI input.
func NDIPreviewURL(domain, address string, input int) string {
	return fmt.Sprintf("https://%s/epiphan/https/%s/api/v2.0/inputs/NDI%d/preview?%s",
		domain, address, input, previewQuery)
}

// StreamURL is the MPEG-TS live stream for a channel.
func StreamURL(domain, address, channelID string) string {
	return fmt.Sprintf("https://%s/epiphan/https/%s/streams/%s/ts", domain, address, url.PathEscape(channelID))
}

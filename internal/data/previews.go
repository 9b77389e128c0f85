package data

// CameraPreview is a ready-to-render snapshot tile for one active channel.
// Recomputed on each discovery pass.
type CameraPreview struct {
	Module    string `json:"module"`
	Label     string `json:"label"`
	URL       string `json:"url"`
	ChannelID string `json:"channel_id,omitempty"`
	Input     int    `json:"input,omitempty"` // NDI input index, index-based discovery only
}

// SystemWithPreviews is a System decorated with its resolved modules and previews.
type SystemWithPreviews struct {
	System
	LoadedModules  []Module        `json:"loaded_modules"`
	CameraPreviews []CameraPreview `json:"camera_previews"`
}

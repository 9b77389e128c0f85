package cameras

import (
	"net/url"
	"strings"

	"github.com/technosupport/roomview/internal/data"
)

// QueryParam carries the selected camera across navigation.
const QueryParam = "camera"

// cameraKeywords mark a module as a controllable camera by display name.
var cameraKeywords = []string{"camera", "ptz", "vision"}

// FilterCameraModules keeps modules whose display name mentions a camera keyword.
func FilterCameraModules(modules []data.Module) []data.Module {
	out := make([]data.Module, 0, len(modules))
	for _, m := range modules {
		name := strings.ToLower(m.DisplayName())
		for _, kw := range cameraKeywords {
			if strings.Contains(name, kw) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// SelectFromQuery derives the selected camera from URL query values: the
// camera parameter when present, otherwise the first camera. Empty when
// there are no cameras and no parameter.
func SelectFromQuery(values url.Values, cameras []data.Module) string {
	if v := strings.TrimSpace(values.Get(QueryParam)); v != "" {
		return v
	}
	if len(cameras) > 0 {
		return cameras[0].ID
	}
	return ""
}

// SelectionQuery is the inverse of SelectFromQuery: the query that
// persists a selection.
func SelectionQuery(id string) url.Values {
	v := url.Values{}
	if id != "" {
		v.Set(QueryParam, id)
	}
	return v
}

// Find returns the camera with id, if it is one of cameras.
func Find(cameras []data.Module, id string) (*data.Module, bool) {
	for i := range cameras {
		if cameras[i].ID == id {
			return &cameras[i], true
		}
	}
	return nil, false
}

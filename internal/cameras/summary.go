package cameras

import "github.com/technosupport/roomview/internal/data"

// GridSize is how many previews a system card shows inline.
const GridSize = 3

// GridSummary is the compact preview strip shown on a system card.
type GridSummary struct {
	Shown     []data.CameraPreview `json:"shown"`
	Remaining int                  `json:"remaining"`
	Total     int                  `json:"total"`
}

func Summarize(previews []data.CameraPreview) GridSummary {
	n := min(len(previews), GridSize)
	shown := make([]data.CameraPreview, n)
	copy(shown, previews[:n])
	return GridSummary{Shown: shown, Remaining: len(previews) - n, Total: len(previews)}
}

// Status is a module's health badge.
type Status string

const (
	StatusUnknown      Status = "unknown"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusStopped      Status = "stopped"
	StatusError        Status = "error"
)

// ModuleStatus folds the platform's connectivity flags into one badge.
// A runtime error wins over everything else.
func ModuleStatus(m data.Module) Status {
	switch {
	case m.HasRuntimeError:
		return StatusError
	case m.Running != nil && !*m.Running:
		return StatusStopped
	case m.Connected == nil:
		return StatusUnknown
	case *m.Connected:
		return StatusConnected
	default:
		return StatusDisconnected
	}
}

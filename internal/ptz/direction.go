package ptz

import "math"

// Direction is a discrete joystick or zoom direction. None means centered.
type Direction string

const (
	None  Direction = ""
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
	In    Direction = "in"
	Out   Direction = "out"
)

// Clamp2D limits (x, y) to a circle of radius r, keeping its angle.
func Clamp2D(x, y, r float64) (float64, float64) {
	d := math.Hypot(x, y)
	if d <= r || d == 0 {
		return x, y
	}
	return x / d * r, y / d * r
}

// Clamp1D limits y to [-r, r].
func Clamp1D(y, r float64) float64 {
	return math.Max(-r, math.Min(r, y))
}

// JoystickDirection maps a screen-space offset (y grows downward) to a
// direction. Sectors are half-open: right [-45°,45°), down [45°,135°),
// up [-135°,-45°), left otherwise. Offsets shorter than deadzone are None.
func JoystickDirection(x, y, deadzone float64) Direction {
	if math.Hypot(x, y) < deadzone {
		return None
	}
	angle := math.Atan2(y, x) * 180 / math.Pi
	switch {
	case angle >= -45 && angle < 45:
		return Right
	case angle >= 45 && angle < 135:
		return Down
	case angle >= -135 && angle < -45:
		return Up
	default:
		return Left
	}
}

// ZoomDirection maps a vertical offset to a zoom direction: dragging up
// zooms in. The offset must exceed deadzone.
func ZoomDirection(y, deadzone float64) Direction {
	if math.Abs(y) <= deadzone {
		return None
	}
	if y < 0 {
		return In
	}
	return Out
}

// Command is one camera method invocation.
type Command struct {
	Method string
	Arg    string
}

var (
	StopCommand = Command{Method: "stop"}
	HomeCommand = Command{Method: "home"}
)

// Args returns the positional arguments for the platform call.
func (c Command) Args() []any {
	if c.Arg == "" {
		return nil
	}
	return []any{c.Arg}
}

func (c Command) String() string {
	if c.Arg == "" {
		return c.Method
	}
	return c.Method + "(" + c.Arg + ")"
}

// CommandFor translates a direction into the camera method that moves that way.
func CommandFor(d Direction) Command {
	switch d {
	case Up, Down:
		return Command{Method: "tilt", Arg: string(d)}
	case Left, Right:
		return Command{Method: "pan", Arg: string(d)}
	case In, Out:
		return Command{Method: "zoom", Arg: string(d)}
	}
	return Command{}
}

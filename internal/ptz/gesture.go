package ptz

// Kind distinguishes the two independent gesture axes.
type Kind string

const (
	PanTilt Kind = "pantilt"
	Zoom    Kind = "zoom"
)

// Params bounds a gesture.
type Params struct {
	MaxRadius float64
	Deadzone  float64
}

// Action tells the axis what to do with its repeat timer.
type Action int

const (
	// Hold keeps whatever is running.
	Hold Action = iota
	// Repeat sends Command now and restarts the repeat timer with it.
	Repeat
	// Stop cancels the timer and sends the stop command once.
	Stop
)

// Transition is the side effect a gesture event requires.
type Transition struct {
	Action  Action
	Command Command
}

// Gesture is the state of one axis. It is a value: every event returns the
// next state and the transition to apply.
type Gesture struct {
	Kind     Kind
	Dragging bool
	X, Y     float64
	Last     Direction
}

// Start begins a drag at offset (x, y) from the control's origin.
func (g Gesture) Start(x, y float64, p Params) (Gesture, Transition) {
	if !g.Dragging {
		g = Gesture{Kind: g.Kind, Dragging: true}
	}
	return g.Move(x, y, p)
}

// Move updates the offset. A command is issued only when the derived
// direction differs from the last one sent. Moving back inside the deadzone
// keeps the current command repeating.
func (g Gesture) Move(x, y float64, p Params) (Gesture, Transition) {
	if !g.Dragging {
		return g, Transition{}
	}

	var dir Direction
	if g.Kind == Zoom {
		g.X, g.Y = 0, Clamp1D(y, p.MaxRadius)
		dir = ZoomDirection(g.Y, p.Deadzone)
	} else {
		g.X, g.Y = Clamp2D(x, y, p.MaxRadius)
		dir = JoystickDirection(g.X, g.Y, p.Deadzone)
	}

	if dir == None || dir == g.Last {
		return g, Transition{}
	}
	g.Last = dir
	return g, Transition{Action: Repeat, Command: CommandFor(dir)}
}

// Release ends the drag. Releasing an idle gesture does nothing, so stop is
// sent exactly once per drag.
func (g Gesture) Release() (Gesture, Transition) {
	if !g.Dragging {
		return g, Transition{}
	}
	return Gesture{Kind: g.Kind}, Transition{Action: Stop, Command: StopCommand}
}

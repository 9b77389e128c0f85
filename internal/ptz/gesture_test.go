package ptz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var params = Params{MaxRadius: 80, Deadzone: 10}

func TestGesture_StartInsideDeadzoneSendsNothing(t *testing.T) {
	g, tr := Gesture{Kind: PanTilt}.Start(3, 4, params)
	assert.True(t, g.Dragging)
	assert.Equal(t, Hold, tr.Action)
	assert.Equal(t, None, g.Last)
}

func TestGesture_EdgeTriggered(t *testing.T) {
	g, tr := Gesture{Kind: PanTilt}.Start(30, 0, params)
	assert.Equal(t, Transition{Action: Repeat, Command: Command{Method: "pan", Arg: "right"}}, tr)

	g, tr = g.Move(60, 5, params)
	assert.Equal(t, Hold, tr.Action, "same direction must not redispatch")

	g, tr = g.Move(0, 60, params)
	assert.Equal(t, Transition{Action: Repeat, Command: Command{Method: "tilt", Arg: "down"}}, tr)

	// back to center keeps the last command running
	g, tr = g.Move(1, 1, params)
	assert.Equal(t, Hold, tr.Action)
	assert.Equal(t, Down, g.Last)
}

func TestGesture_MoveClampsOffset(t *testing.T) {
	g, _ := Gesture{Kind: PanTilt}.Start(0, 0, params)
	g, _ = g.Move(0, -500, params)
	assert.Equal(t, -80.0, g.Y)

	z, _ := Gesture{Kind: Zoom}.Start(0, 0, params)
	z, tr := z.Move(999, 500, params)
	assert.Equal(t, 80.0, z.Y)
	assert.Equal(t, 0.0, z.X)
	assert.Equal(t, Command{Method: "zoom", Arg: "out"}, tr.Command)
}

func TestGesture_ReleaseResetsAndStopsOnce(t *testing.T) {
	g, _ := Gesture{Kind: Zoom}.Start(0, -40, params)
	g, tr := g.Release()
	assert.Equal(t, Transition{Action: Stop, Command: StopCommand}, tr)
	assert.Equal(t, Gesture{Kind: Zoom}, g)

	_, tr = g.Release()
	assert.Equal(t, Hold, tr.Action, "idle release is a no-op")
}

func TestGesture_MoveWhileIdleIgnored(t *testing.T) {
	g, tr := Gesture{Kind: PanTilt}.Move(50, 0, params)
	assert.False(t, g.Dragging)
	assert.Equal(t, Hold, tr.Action)
}

func TestGesture_StartWhileDraggingActsAsMove(t *testing.T) {
	g, _ := Gesture{Kind: PanTilt}.Start(40, 0, params)
	g, tr := g.Start(45, 0, params)
	assert.Equal(t, Hold, tr.Action)
	assert.Equal(t, Right, g.Last)
}

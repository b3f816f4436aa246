// Package activation tracks whether the camera is live and arms the scan
// gate in response to explicit user intent.
package activation

import (
	"errors"

	"github.com/scanrelay/scanrelay/internal/scan"
)

// State is the scanner screen state.
type State int

const (
	Idle     State = iota // camera off, gate disarmed
	Scanning              // camera on, gate disarmed
	Armed                 // camera on, gate armed for one candidate
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Armed:
		return "armed"
	default:
		return "unknown"
	}
}

// ErrCameraDenied is returned by OpenScanner without camera permission.
var ErrCameraDenied = errors.New("camera permission not granted")

// Controller is the Idle -> Scanning -> Armed -> Scanning cycle. It never
// touches the gate's flag directly, only its operations.
type Controller struct {
	gate          *scan.Gate
	state         State
	cameraGranted bool
}

// New returns an Idle controller driving gate. Camera permission starts
// out not granted.
func New(gate *scan.Gate) *Controller {
	return &Controller{gate: gate}
}

// SetCameraPermission records the outcome of the camera permission request.
// Revoking it while the scanner is open closes the scanner.
func (c *Controller) SetCameraPermission(granted bool) {
	c.cameraGranted = granted
	if !granted {
		c.Exit()
	}
}

// CameraPermitted reports the last recorded camera permission.
func (c *Controller) CameraPermitted() bool {
	return c.cameraGranted
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// CameraActive is true whenever the scanner screen is open.
func (c *Controller) CameraActive() bool {
	return c.state != Idle
}

// OpenScanner moves Idle to Scanning. It is refused without camera
// permission and is a no-op when the scanner is already open.
func (c *Controller) OpenScanner() error {
	if !c.cameraGranted {
		return ErrCameraDenied
	}
	if c.state == Idle {
		c.state = Scanning
	}
	return nil
}

// PressTrigger arms the gate. It reports false when the scanner is not open.
// Pressing again while Armed re-arms, which changes nothing.
func (c *Controller) PressTrigger() bool {
	if c.state == Idle {
		return false
	}
	c.gate.Arm()
	c.state = Armed
	return true
}

// Observe feeds one frame's batch through the gate. On acceptance the
// controller returns to Scanning.
func (c *Controller) Observe(b scan.Batch) (scan.Candidate, bool) {
	if c.state == Idle {
		return scan.Candidate{}, false
	}
	accepted, ok := c.gate.ObserveBatch(b)
	if ok {
		c.state = Scanning
	}
	return accepted, ok
}

// Exit closes the scanner from any state, discarding a pending arm.
func (c *Controller) Exit() {
	c.gate.Disarm()
	c.state = Idle
}

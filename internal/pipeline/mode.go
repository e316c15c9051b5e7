package pipeline

import "sync/atomic"

// Mode selects the render path for video frames.
type Mode int

const (
	ModeCalibration Mode = iota // masked raw fisheye
	ModeUnwrap                  // unwrapped strip, recording enabled
)

func (m Mode) String() string {
	switch m {
	case ModeCalibration:
		return "calibration"
	case ModeUnwrap:
		return "unwrap"
	default:
		return "unknown"
	}
}

// Calibration is a one-way flag: once calibrated it stays calibrated until
// the capture session restarts with a new Calibration.
type Calibration struct {
	done atomic.Bool
}

// Calibrate sets the flag. It reports whether this call changed it.
func (c *Calibration) Calibrate() bool {
	return c.done.CompareAndSwap(false, true)
}

// Calibrated reports whether unwrapping is active.
func (c *Calibration) Calibrated() bool {
	return c.done.Load()
}

// Mode returns the render path for the current state.
func (c *Calibration) Mode() Mode {
	if c.Calibrated() {
		return ModeUnwrap
	}
	return ModeCalibration
}

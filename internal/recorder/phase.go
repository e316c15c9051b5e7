package recorder

// Phase is the lifecycle phase of a recording attempt.
type Phase string

// Recorder phases.
const (
	PhaseIdle        Phase = "idle"        // No recording
	PhaseConfiguring Phase = "configuring" // Writer built, waiting for the first video frame
	PhaseWriting     Phase = "writing"     // Session anchored, appending samples
	PhaseFinishing   Phase = "finishing"   // Writer finalizing the container
	PhaseAborting    Phase = "aborting"    // Writer cancelled, cleaning up
)

// Phases lists every phase, in lifecycle order.
var Phases = []Phase{PhaseIdle, PhaseConfiguring, PhaseWriting, PhaseFinishing, PhaseAborting}

// Recording reports whether the phase accepts frames.
func (p Phase) Recording() bool {
	return p == PhaseConfiguring || p == PhaseWriting
}

func phaseNames() []string {
	names := make([]string, len(Phases))
	for i, p := range Phases {
		names[i] = string(p)
	}
	return names
}

// Package orpar implements the ORPAR cognitive loop (component C5): the
// five-phase Observe/Reason/Plan/Act/Reflect state machine every agent
// runtime drives once per turn, grounded on the teacher's AgenticLoop
// (internal/agent/loop.go) Init/Stream/ExecuteTools/Continue/Complete
// state machine generalized onto the spec's five named phases.
package orpar

// Phase is one step of the ORPAR cognitive cycle.
type Phase string

const (
	PhaseObserve Phase = "observe"
	PhaseReason  Phase = "reason"
	PhasePlan    Phase = "plan"
	PhaseAct     Phase = "act"
	PhaseReflect Phase = "reflect"
)

// eventTypeForPhase maps a phase to the bus event type emitted while the
// loop is in it (spec §4.1 whitelist: controlloop.observation/reasoning/
// plan/action/reflection).
func eventTypeForPhase(p Phase) string {
	switch p {
	case PhaseObserve:
		return "controlloop.observation"
	case PhaseReason:
		return "controlloop.reasoning"
	case PhasePlan:
		return "controlloop.plan"
	case PhaseAct:
		return "controlloop.action"
	case PhaseReflect:
		return "controlloop.reflection"
	default:
		return "controlloop.reasoning"
	}
}

package taskrunner

import "fmt"

// Phase is a step of a Run.
type Phase int

// Phases in execution order. FailedArgs is the only exit taken before any
// remote call.
const (
	PhaseIdle Phase = iota
	PhaseRegistering
	PhaseLaunching
	PhaseWaiting
	PhaseFetchingResult
	PhaseLogStreaming
	PhaseDone
	PhaseFailedArgs
)

var phaseNames = map[Phase]string{
	PhaseIdle:           "IDLE",
	PhaseRegistering:    "REGISTERING",
	PhaseLaunching:      "LAUNCHING",
	PhaseWaiting:        "WAITING",
	PhaseFetchingResult: "FETCHING_RESULT",
	PhaseLogStreaming:   "LOG_STREAMING",
	PhaseDone:           "DONE",
	PhaseFailedArgs:     "FAILED_ARGS",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

var phaseTransitions = map[Phase][]Phase{
	PhaseIdle:           {PhaseRegistering, PhaseFailedArgs},
	PhaseRegistering:    {PhaseLaunching},
	PhaseLaunching:      {PhaseWaiting},
	PhaseWaiting:        {PhaseFetchingResult},
	PhaseFetchingResult: {PhaseLogStreaming},
	PhaseLogStreaming:   {PhaseDone},
}

// CanTransition reports whether to may follow from.
func CanTransition(from, to Phase) bool {
	for _, next := range phaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TaskState is the simplified lifecycle of an ECS task.
type TaskState string

// Simplified task states.
const (
	TaskPending TaskState = "PENDING"
	TaskRunning TaskState = "RUNNING"
	TaskStopped TaskState = "STOPPED"
)

// SimplifyStatus folds an ECS lastStatus onto PENDING, RUNNING or STOPPED.
// Shutdown states count as RUNNING until the task reports STOPPED.
func SimplifyStatus(lastStatus string) TaskState {
	switch lastStatus {
	case "STOPPED":
		return TaskStopped
	case "RUNNING", "DEACTIVATING", "STOPPING", "DEPROVISIONING":
		return TaskRunning
	default:
		return TaskPending
	}
}

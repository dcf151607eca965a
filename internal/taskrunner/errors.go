package taskrunner

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

var (
	// ErrUnknownResourceTier is returned for a container size outside the table.
	ErrUnknownResourceTier = errors.New("unknown resource tier")
	// ErrUnknownRegion is returned for a region without a short name.
	ErrUnknownRegion = errors.New("unknown region")
	// ErrInvalidEnvVarFormat is returned for an env var not shaped NAME=VALUE.
	ErrInvalidEnvVarFormat = errors.New("invalid env var format")
	// ErrWaitTimeout is returned when the task is not stopped after every poll.
	ErrWaitTimeout = errors.New("timed out waiting for task to stop")
	// ErrTaskMissing is returned when ECS no longer knows the task.
	ErrTaskMissing = errors.New("task missing")
	// ErrLaunchFailed is returned when RunTask starts no task.
	ErrLaunchFailed = errors.New("task launch failed")
	// ErrLogPageLimit ends a log stream whose continuation token never settles.
	ErrLogPageLimit = errors.New("log page limit reached")
)

// ArgumentError reports invalid invocation arguments. Callers print usage
// and exit with status 2.
type ArgumentError struct {
	Msg string
	Err error
}

func (e *ArgumentError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// OrchestratorError wraps a failed AWS API call with the task it concerned.
type OrchestratorError struct {
	Op      string
	Cluster string
	Task    string
	Code    string
	Err     error
}

func (e *OrchestratorError) Error() string {
	msg := e.Op + " failed"
	if e.Cluster != "" {
		msg += " on cluster " + e.Cluster
	}
	if e.Task != "" {
		msg += " for " + e.Task
	}
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *OrchestratorError) Unwrap() error {
	return e.Err
}

func newOrchestratorError(op, cluster, task string, err error) error {
	oe := &OrchestratorError{Op: op, Cluster: cluster, Task: task, Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		oe.Code = apiErr.ErrorCode()
	}
	return oe
}

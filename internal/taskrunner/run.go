package taskrunner

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Invocation is one operator request to run a command.
type Invocation struct {
	Command  []string
	ImageTag string
	Tier     string
	EnvVars  []string
}

// Validate checks the arguments without touching AWS and returns the parsed
// environment. Every failure is an *ArgumentError.
func (inv Invocation) Validate() ([]EnvVar, error) {
	if len(inv.Command) == 0 {
		return nil, &ArgumentError{Msg: "argument 'command...' is required"}
	}
	if _, err := ResourcesFor(inv.Tier); err != nil {
		return nil, &ArgumentError{Msg: "option '--container-size' must be one of small, medium, large, huge", Err: err}
	}
	env, err := ParseEnvVars(inv.EnvVars)
	if err != nil {
		return nil, &ArgumentError{Msg: "option '--env-var' expected form is NAME=VALUE", Err: err}
	}
	return env, nil
}

// Result summarizes a finished Run.
type Result struct {
	ExitCode       int
	TaskDefinition string
	Task           TaskRun
	Phases         []Phase
	LogLines       int
}

type phaseTracker struct {
	current Phase
	history []Phase
	logger  *zap.Logger
}

func (t *phaseTracker) enter(next Phase) {
	if !CanTransition(t.current, next) {
		panic(fmt.Sprintf("taskrunner: illegal phase transition %s -> %s", t.current, next))
	}
	t.logger.Debug("phase", zap.Stringer("from", t.current), zap.Stringer("to", next))
	t.current = next
	t.history = append(t.history, next)
}

// Run registers, launches, waits for and streams the logs of one task. The
// returned exit code is the container's. A failure while streaming logs is
// logged and does not change it.
func (r *Runner) Run(ctx context.Context, inv Invocation) (Result, error) {
	tracker := &phaseTracker{logger: r.logger}
	done := r.stopwatch("run")
	defer done()

	env, err := inv.Validate()
	if err != nil {
		tracker.enter(PhaseFailedArgs)
		return Result{ExitCode: 2, Phases: tracker.history}, err
	}

	tracker.enter(PhaseRegistering)
	stop := r.stopwatch("register")
	ref, err := r.Register(ctx, RegisterInput{
		Command:  inv.Command,
		ImageTag: inv.ImageTag,
		Tier:     inv.Tier,
		Env:      env,
	})
	stop()
	if err != nil {
		return Result{ExitCode: 1, Phases: tracker.history}, err
	}

	tracker.enter(PhaseLaunching)
	stop = r.stopwatch("launch")
	run, err := r.Launch(ctx, ref)
	stop()
	if err != nil {
		return Result{ExitCode: 1, TaskDefinition: ref.ARN, Phases: tracker.history}, err
	}

	tracker.enter(PhaseWaiting)
	stop = r.stopwatch("wait")
	run, err = r.AwaitCompletion(ctx, run)
	stop()
	if err != nil {
		return Result{ExitCode: 1, TaskDefinition: ref.ARN, Task: run, Phases: tracker.history}, err
	}

	tracker.enter(PhaseFetchingResult)
	code := ExitCode(run)
	if code == 0 {
		r.logger.Info("task completed. ALL GREEN!", zap.String("task", run.ARN))
	} else {
		r.logger.Error("task failed",
			zap.String("task", run.ARN),
			zap.Int("exit_code", code),
			zap.String("task_reason", run.StoppedReason),
			zap.String("container_reason", run.ContainerReason),
		)
	}

	tracker.enter(PhaseLogStreaming)
	stop = r.stopwatch("logs")
	lines := r.printLogs(ctx, run)
	stop()

	tracker.enter(PhaseDone)
	return Result{
		ExitCode:       code,
		TaskDefinition: ref.ARN,
		Task:           run,
		Phases:         tracker.history,
		LogLines:       lines,
	}, nil
}

func (r *Runner) printLogs(ctx context.Context, run TaskRun) int {
	r.logger.Info("getting task log events", zap.String("task", run.ARN))
	lines := 0
	for line, err := range r.FetchLogs(ctx, run) {
		if err != nil {
			r.logger.Error("failed to get log events",
				zap.String("cluster", run.Cluster),
				zap.String("task", run.ARN),
				zap.String("group", r.logGroup()),
				zap.String("stream", LogStream(run.ARN)),
				zap.Error(err),
			)
			return lines
		}
		lines++
		r.logger.Info(line)
	}
	r.logger.Info("end of task log events", zap.String("task", run.ARN))
	return lines
}

// stopwatch logs the start of step at debug level and returns a func that
// logs its duration.
func (r *Runner) stopwatch(step string) func() {
	r.logger.Debug("start", zap.String("step", step))
	start := r.clock.Now()
	return func() {
		r.logger.Info("end", zap.String("step", step), zap.Duration("took", r.clock.Now().Sub(start)))
	}
}

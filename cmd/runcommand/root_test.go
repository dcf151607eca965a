package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/study01/study-app-server/internal/taskrunner"
)

type fakeRunner struct {
	invocations []taskrunner.Invocation
	result      taskrunner.Result
	err         error
}

func (f *fakeRunner) Run(_ context.Context, inv taskrunner.Invocation) (taskrunner.Result, error) {
	f.invocations = append(f.invocations, inv)
	return f.result, f.err
}

type harness struct {
	runner  *fakeRunner
	opts    []options
	closed  int
	logs    *observer.ObservedLogs
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	factory deps
}

func newHarness() *harness {
	h := &harness{runner: &fakeRunner{}}
	core, logs := observer.New(zapcore.DebugLevel)
	h.logs = logs
	h.factory = deps{
		newLogger: func(bool) (*zap.Logger, error) { return zap.New(core), nil },
		newRunner: func(_ context.Context, opts options, _ *zap.Logger) (taskRunner, func(), error) {
			h.opts = append(h.opts, opts)
			return h.runner, func() { h.closed++ }, nil
		},
	}
	return h
}

func (h *harness) exec(args ...string) int {
	return execute(context.Background(), args, &h.stdout, &h.stderr, h.factory)
}

func TestExecutePassesCommandThrough(t *testing.T) {
	t.Parallel()
	h := newHarness()

	code := h.exec("--env", "prod", "--container-size", "large", "--image-tag", "v2",
		"--env-var", "A=1", "--env-var", "B=x,y",
		"python", "-m", "app.batch", "--verbose", "--env", "other")
	require.Equal(t, 0, code, h.stderr.String())

	require.Len(t, h.runner.invocations, 1)
	inv := h.runner.invocations[0]
	assert.Equal(t, []string{"python", "-m", "app.batch", "--verbose", "--env", "other"}, inv.Command)
	assert.Equal(t, "v2", inv.ImageTag)
	assert.Equal(t, "large", inv.Tier)
	assert.Equal(t, []string{"A=1", "B=x,y"}, inv.EnvVars)

	require.Len(t, h.opts, 1)
	assert.Equal(t, "prod", h.opts[0].Env)
	assert.Equal(t, "ap-northeast-1", h.opts[0].Region)
	assert.False(t, h.opts[0].Verbose)
	assert.Equal(t, 1, h.closed)
}

func TestExecuteDefaults(t *testing.T) {
	t.Parallel()
	h := newHarness()

	require.Equal(t, 0, h.exec("echo", "hi"))
	inv := h.runner.invocations[0]
	assert.Equal(t, "latest", inv.ImageTag)
	assert.Equal(t, "small", inv.Tier)
	assert.Empty(t, inv.EnvVars)
	assert.Equal(t, "dev", h.opts[0].Env)
}

func TestExecuteReturnsTaskExitCode(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.runner.result = taskrunner.Result{ExitCode: 3}

	assert.Equal(t, 3, h.exec("false"))
	entries := h.logs.FilterMessage("task exit with code").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 3, entries[0].ContextMap()["exit_code"])
}

func TestExecuteRunnerError(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.runner.err = taskrunner.ErrLaunchFailed

	assert.Equal(t, 1, h.exec("true"))
	assert.Contains(t, h.stderr.String(), "task launch failed")
	assert.Equal(t, 1, h.closed)
}

func TestExecuteFactoryError(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.factory.newRunner = func(context.Context, options, *zap.Logger) (taskRunner, func(), error) {
		return nil, nil, errors.New("no credentials")
	}

	assert.Equal(t, 1, h.exec("true"))
	assert.Contains(t, h.stderr.String(), "init runner: no credentials")
}

func TestExecuteArgumentErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"missing command", nil, "argument 'command...' is required"},
		{"bad env", []string{"--env", "stg", "true"}, "argument --env: invalid choice"},
		{"bad size", []string{"--container-size", "xl", "true"}, "argument --container-size: invalid choice"},
		{"bad env var", []string{"--env-var", "NOPE", "true"}, "option '--env-var' expected form is NAME=VALUE"},
		{"bad region", []string{"--aws-region", "eu-west-1", "true"}, "unknown region"},
		{"unknown flag", []string{"--bogus", "true"}, "unknown flag: --bogus"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness()

			assert.Equal(t, 2, h.exec(tc.args...))
			assert.Contains(t, h.stderr.String(), "Usage:")
			assert.Contains(t, h.stderr.String(), "runcommand: error: ")
			assert.Contains(t, h.stderr.String(), tc.want)
			assert.Empty(t, h.opts, "no runner may be built for invalid arguments")
		})
	}
}

func TestExecuteReadsEnvironment(t *testing.T) {
	t.Setenv("RUNCOMMAND_IMAGE_TAG", "from-env")
	t.Setenv("RUNCOMMAND_AWS_REGION", "us-west-2")
	t.Setenv("RUNCOMMAND_ENV_VAR", "X=1 Y=2")
	h := newHarness()

	require.Equal(t, 0, h.exec("--aws-region", "us-east-1", "true"))
	inv := h.runner.invocations[0]
	assert.Equal(t, "from-env", inv.ImageTag)
	assert.Equal(t, []string{"X=1", "Y=2"}, inv.EnvVars)
	assert.Equal(t, "us-east-1", h.opts[0].Region, "flags win over environment")
}

func TestExecuteHelp(t *testing.T) {
	t.Parallel()
	h := newHarness()

	assert.Equal(t, 0, h.exec("--help"))
	assert.Contains(t, h.stdout.String(), "--container-size")
	assert.Empty(t, h.runner.invocations)
}

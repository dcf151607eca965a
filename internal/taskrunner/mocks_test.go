package taskrunner

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/mock"
)

type mockECS struct {
	mock.Mock
}

func (m *mockECS) RegisterTaskDefinition(ctx context.Context, in *ecs.RegisterTaskDefinitionInput, _ ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*ecs.RegisterTaskDefinitionOutput)
	return out, args.Error(1)
}

func (m *mockECS) RunTask(ctx context.Context, in *ecs.RunTaskInput, _ ...func(*ecs.Options)) (*ecs.RunTaskOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*ecs.RunTaskOutput)
	return out, args.Error(1)
}

func (m *mockECS) DescribeTasks(ctx context.Context, in *ecs.DescribeTasksInput, _ ...func(*ecs.Options)) (*ecs.DescribeTasksOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*ecs.DescribeTasksOutput)
	return out, args.Error(1)
}

type mockSSM struct {
	mock.Mock
}

func (m *mockSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*ssm.GetParameterOutput)
	return out, args.Error(1)
}

type mockSTS struct {
	mock.Mock
}

func (m *mockSTS) GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sts.GetCallerIdentityOutput)
	return out, args.Error(1)
}

// scriptedLogs returns pages in order and records the token of each call.
type scriptedLogs struct {
	pages  []*cloudwatchlogs.GetLogEventsOutput
	err    error
	tokens []*string
	inputs []*cloudwatchlogs.GetLogEventsInput
}

func (s *scriptedLogs) GetLogEvents(_ context.Context, in *cloudwatchlogs.GetLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error) {
	s.inputs = append(s.inputs, in)
	s.tokens = append(s.tokens, in.NextToken)
	if s.err != nil {
		return nil, s.err
	}
	i := len(s.tokens) - 1
	if i >= len(s.pages) {
		return s.pages[len(s.pages)-1], nil
	}
	return s.pages[i], nil
}

func page(next *string, messages ...string) *cloudwatchlogs.GetLogEventsOutput {
	events := make([]cwtypes.OutputLogEvent, 0, len(messages))
	for _, m := range messages {
		events = append(events, cwtypes.OutputLogEvent{Message: aws.String(m)})
	}
	return &cloudwatchlogs.GetLogEventsOutput{Events: events, NextForwardToken: next}
}

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
	err    error
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	if c.err != nil {
		return c.err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

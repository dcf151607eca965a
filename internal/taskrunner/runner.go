package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"go.uber.org/zap"
)

// Fixed names shared by every run-command task.
const (
	DefaultCluster      = "study01"
	ContainerName       = "study01-fastapi"
	ApplicationRole     = "run_command"
	Product             = "study01"
	DefaultPollInterval = 10 * time.Second
	DefaultMaxAttempts  = 100
	DefaultMaxLogPages  = 1000
)

// ECSAPI is the subset of the ECS client the runner calls.
type ECSAPI interface {
	RegisterTaskDefinition(ctx context.Context, in *ecs.RegisterTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error)
	RunTask(ctx context.Context, in *ecs.RunTaskInput, optFns ...func(*ecs.Options)) (*ecs.RunTaskOutput, error)
	DescribeTasks(ctx context.Context, in *ecs.DescribeTasksInput, optFns ...func(*ecs.Options)) (*ecs.DescribeTasksOutput, error)
}

// LogsAPI is the subset of the CloudWatch Logs client the runner calls.
type LogsAPI interface {
	GetLogEvents(ctx context.Context, in *cloudwatchlogs.GetLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error)
}

// Clock supplies time for stopwatch logging and poll delays.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Settings describe the target environment of a runner.
type Settings struct {
	Env          string
	Region       string
	AccountID    string
	Cluster      string
	Infra        InfraParams
	PollInterval time.Duration
	MaxAttempts  int
	MaxLogPages  int
}

// Deps are the collaborators of a runner.
type Deps struct {
	ECS    ECSAPI
	Logs   LogsAPI
	Clock  Clock
	Logger *zap.Logger
}

// Runner drives one task through registration, launch, wait and logs.
type Runner struct {
	ecs        ECSAPI
	logs       LogsAPI
	clock      Clock
	logger     *zap.Logger
	settings   Settings
	regionName string
}

// New validates settings and fills in defaults.
func New(deps Deps, settings Settings) (*Runner, error) {
	if deps.ECS == nil || deps.Logs == nil || deps.Clock == nil {
		return nil, errors.New("taskrunner: ecs, logs and clock are required")
	}
	if settings.Env == "" {
		return nil, errors.New("taskrunner: env is required")
	}
	if settings.AccountID == "" {
		return nil, errors.New("taskrunner: account id is required")
	}
	regionName, err := RegionName(settings.Region)
	if err != nil {
		return nil, err
	}
	if settings.Cluster == "" {
		settings.Cluster = DefaultCluster
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = DefaultPollInterval
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = DefaultMaxAttempts
	}
	if settings.MaxLogPages <= 0 {
		settings.MaxLogPages = DefaultMaxLogPages
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		ecs:        deps.ECS,
		logs:       deps.Logs,
		clock:      deps.Clock,
		logger:     logger,
		settings:   settings,
		regionName: regionName,
	}, nil
}

// TaskDefinitionRef identifies a registered task definition.
type TaskDefinitionRef struct {
	ARN string
}

// TaskRun is the last observed state of a launched task.
type TaskRun struct {
	ARN             string
	Cluster         string
	LastStatus      string
	State           TaskState
	ExitCode        *int32
	StoppedReason   string
	ContainerReason string
}

// RegisterInput is what a caller controls in a task definition.
type RegisterInput struct {
	Command  []string
	ImageTag string
	Tier     string
	Env      []EnvVar
}

// Register creates a new revision of the run-command task definition.
func (r *Runner) Register(ctx context.Context, in RegisterInput) (TaskDefinitionRef, error) {
	res, err := ResourcesFor(in.Tier)
	if err != nil {
		return TaskDefinitionRef{}, err
	}
	s := r.settings
	env := []ecstypes.KeyValuePair{
		{Name: aws.String("APPLICATION_ENV"), Value: aws.String(s.Env)},
		{Name: aws.String("APPLICATION_ROLE"), Value: aws.String(ApplicationRole)},
		{Name: aws.String("DB_HOST"), Value: aws.String(s.Infra.DBHost)},
		{Name: aws.String("DB_NAME"), Value: aws.String(s.Infra.DBName)},
		{Name: aws.String("DB_USER"), Value: aws.String(s.Infra.DBUser)},
		{Name: aws.String("DB_PASSWORD"), Value: aws.String(s.Infra.DBPassword)},
	}
	for _, ev := range in.Env {
		env = append(env, ecstypes.KeyValuePair{Name: aws.String(ev.Name), Value: aws.String(ev.Value)})
	}

	input := &ecs.RegisterTaskDefinitionInput{
		Family:                  aws.String(r.family()),
		TaskRoleArn:             aws.String(r.taskRoleARN()),
		ExecutionRoleArn:        aws.String(fmt.Sprintf("arn:aws:iam::%s:role/ecsTaskExecutionRole", s.AccountID)),
		NetworkMode:             ecstypes.NetworkModeAwsvpc,
		RequiresCompatibilities: []ecstypes.Compatibility{ecstypes.CompatibilityFargate},
		Cpu:                     aws.String(res.CPU),
		Memory:                  aws.String(res.Memory),
		ContainerDefinitions: []ecstypes.ContainerDefinition{{
			Name:        aws.String(ContainerName),
			Image:       aws.String(r.image(in.ImageTag)),
			Essential:   aws.Bool(true),
			Command:     in.Command,
			Environment: env,
			LogConfiguration: &ecstypes.LogConfiguration{
				LogDriver: ecstypes.LogDriverAwslogs,
				Options: map[string]string{
					"awslogs-group":         r.logGroup(),
					"awslogs-region":        s.Region,
					"awslogs-stream-prefix": "ecs",
				},
			},
		}},
		Tags: r.tags(),
	}

	out, err := r.ecs.RegisterTaskDefinition(ctx, input)
	if err != nil {
		return TaskDefinitionRef{}, newOrchestratorError("RegisterTaskDefinition", s.Cluster, "", err)
	}
	if out.TaskDefinition == nil || out.TaskDefinition.TaskDefinitionArn == nil {
		return TaskDefinitionRef{}, errors.New("register task definition returned no arn")
	}
	ref := TaskDefinitionRef{ARN: aws.ToString(out.TaskDefinition.TaskDefinitionArn)}
	r.logger.Info("task definition registered", zap.String("task_definition", ref.ARN))
	return ref, nil
}

// Launch starts one Fargate task from ref.
func (r *Runner) Launch(ctx context.Context, ref TaskDefinitionRef) (TaskRun, error) {
	s := r.settings
	out, err := r.ecs.RunTask(ctx, &ecs.RunTaskInput{
		Cluster:        aws.String(s.Cluster),
		TaskDefinition: aws.String(ref.ARN),
		LaunchType:     ecstypes.LaunchTypeFargate,
		Count:          aws.Int32(1),
		NetworkConfiguration: &ecstypes.NetworkConfiguration{
			AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
				Subnets:        []string{s.Infra.SubnetA, s.Infra.SubnetC},
				SecurityGroups: []string{s.Infra.SecurityGroup},
				AssignPublicIp: ecstypes.AssignPublicIpEnabled,
			},
		},
		Tags: r.tags(),
	})
	if err != nil {
		return TaskRun{}, newOrchestratorError("RunTask", s.Cluster, "", err)
	}
	if len(out.Tasks) == 0 {
		reasons := make([]string, 0, len(out.Failures))
		for _, f := range out.Failures {
			reasons = append(reasons, aws.ToString(f.Reason))
		}
		return TaskRun{}, fmt.Errorf("%w: %s", ErrLaunchFailed, strings.Join(reasons, "; "))
	}
	run := taskRunFrom(out.Tasks[0], s.Cluster)
	r.logger.Info("task started", zap.String("task", run.ARN))
	return run, nil
}

// AwaitCompletion polls the task until it reports STOPPED. The first poll is
// immediate; later polls wait the configured interval.
func (r *Runner) AwaitCompletion(ctx context.Context, run TaskRun) (TaskRun, error) {
	s := r.settings
	r.logger.Info("waiting for task to finish", zap.String("task", run.ARN))
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		out, err := r.ecs.DescribeTasks(ctx, &ecs.DescribeTasksInput{
			Cluster: aws.String(s.Cluster),
			Tasks:   []string{run.ARN},
		})
		if err != nil {
			return run, newOrchestratorError("DescribeTasks", s.Cluster, run.ARN, err)
		}
		for _, f := range out.Failures {
			if aws.ToString(f.Reason) == "MISSING" {
				return run, fmt.Errorf("%w: %s", ErrTaskMissing, run.ARN)
			}
		}
		if len(out.Tasks) == 0 {
			return run, fmt.Errorf("%w: %s", ErrTaskMissing, run.ARN)
		}
		current := taskRunFrom(out.Tasks[0], s.Cluster)
		r.logger.Debug("task status",
			zap.String("task", run.ARN),
			zap.String("last_status", current.LastStatus),
			zap.Int("attempt", attempt),
		)
		if current.State == TaskStopped {
			r.logger.Info("task ended", zap.String("task", current.ARN))
			return current, nil
		}
		run = current
		if attempt == s.MaxAttempts {
			break
		}
		if err := r.clock.Sleep(ctx, s.PollInterval); err != nil {
			return run, fmt.Errorf("wait for %s: %w", run.ARN, err)
		}
	}
	return run, fmt.Errorf("%w: %s after %d attempts", ErrWaitTimeout, run.ARN, s.MaxAttempts)
}

// FetchLogs streams the task's log messages lazily, page by page from the
// head of the stream. The stream ends when CloudWatch returns no token or
// repeats the token just used. A stream whose token keeps changing ends with
// ErrLogPageLimit after MaxLogPages pages.
func (r *Runner) FetchLogs(ctx context.Context, run TaskRun) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		group := r.logGroup()
		stream := LogStream(run.ARN)
		var token *string
		for page := 0; ; page++ {
			if page >= r.settings.MaxLogPages {
				yield("", fmt.Errorf("%w: %d pages from %s", ErrLogPageLimit, page, stream))
				return
			}
			out, err := r.logs.GetLogEvents(ctx, &cloudwatchlogs.GetLogEventsInput{
				LogGroupName:  aws.String(group),
				LogStreamName: aws.String(stream),
				StartFromHead: aws.Bool(true),
				NextToken:     token,
			})
			if err != nil {
				yield("", newOrchestratorError("GetLogEvents", run.Cluster, run.ARN, err))
				return
			}
			for _, ev := range out.Events {
				if !yield(aws.ToString(ev.Message), nil) {
					return
				}
			}
			next := aws.ToString(out.NextForwardToken)
			if next == "" || (token != nil && next == *token) {
				return
			}
			token = aws.String(next)
		}
	}
}

// ExitCode returns the first container's exit code of a stopped task, or 1
// when the task is not stopped or reported no code.
func ExitCode(run TaskRun) int {
	if run.State != TaskStopped || run.ExitCode == nil {
		return 1
	}
	return int(*run.ExitCode)
}

// LogStream derives the awslogs stream name from a task ARN of the form
// arn:aws:ecs:region:account:task/cluster/id.
func LogStream(taskARN string) string {
	parts := strings.Split(taskARN, "/")
	return fmt.Sprintf("ecs/%s/%s", ContainerName, parts[len(parts)-1])
}

func (r *Runner) logGroup() string {
	return fmt.Sprintf("/study01/%s/ecs/stud01_run_command", r.settings.Env)
}

func (r *Runner) family() string {
	return fmt.Sprintf("%s_study01_run_command", r.settings.Env)
}

func (r *Runner) image(tag string) string {
	if tag == "" {
		tag = "latest"
	}
	return fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com/study01-fastapi-%s:%s",
		r.settings.AccountID, r.settings.Region, r.settings.Env, tag)
}

func (r *Runner) taskRoleARN() string {
	return fmt.Sprintf("arn:aws:iam::%s:role/study01-%s-ECSServiceTask-%s-role",
		r.settings.AccountID, roleEnv(r.settings.Env), r.regionName)
}

func (r *Runner) tags() []ecstypes.Tag {
	return []ecstypes.Tag{
		{Key: aws.String("Name"), Value: aws.String(ApplicationRole)},
		{Key: aws.String("Product"), Value: aws.String(Product)},
		{Key: aws.String("Env"), Value: aws.String(r.settings.Env)},
	}
}

func taskRunFrom(task ecstypes.Task, cluster string) TaskRun {
	run := TaskRun{
		ARN:           aws.ToString(task.TaskArn),
		Cluster:       cluster,
		LastStatus:    aws.ToString(task.LastStatus),
		StoppedReason: aws.ToString(task.StoppedReason),
	}
	run.State = SimplifyStatus(run.LastStatus)
	if len(task.Containers) > 0 {
		c := task.Containers[0]
		run.ExitCode = c.ExitCode
		run.ContainerReason = aws.ToString(c.Reason)
	}
	return run
}

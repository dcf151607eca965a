package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/study01/study-app-server/internal/awsclient"
	"github.com/study01/study-app-server/internal/clock/system"
	"github.com/study01/study-app-server/internal/httpclient"
	"github.com/study01/study-app-server/internal/logging"
	"github.com/study01/study-app-server/internal/taskrunner"
)

const envPrefix = "RUNCOMMAND"

var envChoices = []string{"dev", "prod"}

type options struct {
	ImageTag        string
	Env             string
	ContainerSize   string
	EnvVars         []string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Profile         string
	AccountID       string
	EndpointURL     string
	Verbose         bool
}

type taskRunner interface {
	Run(ctx context.Context, inv taskrunner.Invocation) (taskrunner.Result, error)
}

// deps are swapped out in tests so no AWS call is made.
type deps struct {
	newLogger func(verbose bool) (*zap.Logger, error)
	newRunner func(ctx context.Context, opts options, logger *zap.Logger) (taskRunner, func(), error)
}

func defaultDeps() deps {
	return deps{
		newLogger: func(verbose bool) (*zap.Logger, error) {
			return logging.NewCLI("runcommand", verbose)
		},
		newRunner: newAWSRunner,
	}
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer, d deps) int {
	var exitCode int
	cmd := newRootCmd(d, &exitCode)
	if args == nil {
		// cobra falls back to os.Args on nil.
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitCode
	}
	var argErr *taskrunner.ArgumentError
	if errors.As(err, &argErr) {
		fmt.Fprint(stderr, cmd.UsageString())
		fmt.Fprintf(stderr, "%s: error: %s\n", cmd.Name(), argErr.Error())
		return 2
	}
	fmt.Fprintf(stderr, "%s: %v\n", cmd.Name(), err)
	return 1
}

func newRootCmd(d deps, exitCode *int) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "runcommand [flags] command...",
		Short: "Run a command on ECS using the study01 API container.",
		Long: `runcommand registers a task definition for the study01 API image, runs it
once on Fargate, waits for it to stop and prints its CloudWatch logs.
Place the command last; everything after it is passed through untouched.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := readOptions(v, cmd.Flags())
			return run(cmd.Context(), d, opts, args, exitCode)
		},
	}

	flags := cmd.Flags()
	flags.SetInterspersed(false)
	flags.String("image-tag", "latest", "container image tag")
	flags.String("env", "dev", "environment ("+strings.Join(envChoices, "|")+")")
	flags.String("container-size", "small", "container size ("+strings.Join(taskrunner.ResourceTiers(), "|")+")")
	flags.StringArray("env-var", nil, "environment variable NAME=VALUE, repeatable")
	flags.String("aws-region", "ap-northeast-1", "AWS region")
	flags.String("aws-access-key-id", "", "AWS access key id (default credential chain when empty)")
	flags.String("aws-secret-access-key", "", "AWS secret access key (default credential chain when empty)")
	flags.String("aws-profile", "", "AWS shared config profile")
	flags.String("aws-account-id", "", "AWS account id (resolved through STS when empty)")
	flags.String("endpoint-url", "", "override AWS endpoint, for simulators")
	flags.Bool("verbose", false, "verbose mode")
	_ = v.BindPFlags(flags)

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &taskrunner.ArgumentError{Msg: err.Error()}
	})
	return cmd
}

func readOptions(v *viper.Viper, flags *pflag.FlagSet) options {
	opts := options{
		ImageTag:        v.GetString("image-tag"),
		Env:             v.GetString("env"),
		ContainerSize:   v.GetString("container-size"),
		Region:          v.GetString("aws-region"),
		AccessKeyID:     v.GetString("aws-access-key-id"),
		SecretAccessKey: v.GetString("aws-secret-access-key"),
		Profile:         v.GetString("aws-profile"),
		AccountID:       v.GetString("aws-account-id"),
		EndpointURL:     v.GetString("endpoint-url"),
		Verbose:         v.GetBool("verbose"),
	}
	if flags.Changed("env-var") {
		opts.EnvVars, _ = flags.GetStringArray("env-var")
	} else {
		opts.EnvVars = v.GetStringSlice("env-var")
	}
	return opts
}

func run(ctx context.Context, d deps, opts options, command []string, exitCode *int) error {
	if !slices.Contains(envChoices, opts.Env) {
		return &taskrunner.ArgumentError{Msg: fmt.Sprintf(
			"argument --env: invalid choice: %q (choose from %s)", opts.Env, strings.Join(envChoices, ", "))}
	}
	if !slices.Contains(taskrunner.ResourceTiers(), opts.ContainerSize) {
		return &taskrunner.ArgumentError{Msg: fmt.Sprintf(
			"argument --container-size: invalid choice: %q (choose from %s)",
			opts.ContainerSize, strings.Join(taskrunner.ResourceTiers(), ", "))}
	}
	if _, err := taskrunner.RegionName(opts.Region); err != nil {
		return &taskrunner.ArgumentError{Msg: "argument --aws-region", Err: err}
	}
	inv := taskrunner.Invocation{
		Command:  command,
		ImageTag: opts.ImageTag,
		Tier:     opts.ContainerSize,
		EnvVars:  opts.EnvVars,
	}
	if _, err := inv.Validate(); err != nil {
		return err
	}

	logger, err := d.newLogger(opts.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	runner, closeRunner, err := d.newRunner(ctx, opts, logger)
	if err != nil {
		return fmt.Errorf("init runner: %w", err)
	}
	defer closeRunner()

	res, err := runner.Run(ctx, inv)
	if err != nil {
		logger.Error("run command failed", zap.Error(err))
		return err
	}
	if res.ExitCode != 0 {
		logger.Error("task exit with code", zap.Int("exit_code", res.ExitCode))
	}
	*exitCode = res.ExitCode
	return nil
}

// newAWSRunner resolves account and infra parameters and builds a Runner
// backed by real AWS clients sharing one traced HTTP client.
func newAWSRunner(ctx context.Context, opts options, logger *zap.Logger) (taskRunner, func(), error) {
	httpClient := httpclient.New(httpclient.DefaultConfig(), logger.Named("http"))
	fail := func(err error) (taskRunner, func(), error) {
		httpClient.Close()
		return nil, nil, err
	}

	clients, err := awsclient.New(ctx, awsclient.Options{
		Region:          opts.Region,
		AccessKeyID:     opts.AccessKeyID,
		SecretAccessKey: opts.SecretAccessKey,
		Profile:         opts.Profile,
		EndpointURL:     opts.EndpointURL,
		HTTPClient:      httpClient,
	})
	if err != nil {
		return fail(err)
	}

	accountID := opts.AccountID
	if accountID == "" {
		accountID, err = taskrunner.ResolveAccountID(ctx, clients.STS)
		if err != nil {
			return fail(err)
		}
	}
	infra, err := taskrunner.LoadInfraParams(ctx, clients.SSM, opts.Env)
	if err != nil {
		return fail(err)
	}
	logger.Debug("set parameters",
		zap.String("subnet_a", infra.SubnetA),
		zap.String("subnet_c", infra.SubnetC),
		zap.String("security_group", infra.SecurityGroup),
	)

	runner, err := taskrunner.New(taskrunner.Deps{
		ECS:    clients.ECS,
		Logs:   clients.Logs,
		Clock:  system.New(),
		Logger: logger,
	}, taskrunner.Settings{
		Env:       opts.Env,
		Region:    opts.Region,
		AccountID: accountID,
		Infra:     infra,
	})
	if err != nil {
		return fail(err)
	}
	return runner, httpClient.Close, nil
}

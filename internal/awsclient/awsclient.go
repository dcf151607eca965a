// Package awsclient builds the AWS SDK clients used by the run-command tool.
package awsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Options selects region, credentials and an optional endpoint override.
// Static keys win over Profile; with neither the default chain is used.
type Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Profile         string
	// EndpointURL points every client at a simulator such as LocalStack.
	EndpointURL string
	// HTTPClient replaces the SDK's default client once configuration has
	// loaded. When a custom CA bundle is configured the client must
	// implement TransportConfigurer so the bundle's roots can be applied.
	HTTPClient aws.HTTPClient
}

// TransportConfigurer is an HTTP client that can derive a copy of itself
// with adjusted transport settings.
type TransportConfigurer interface {
	aws.HTTPClient
	WithTransportOptions(opts ...func(*http.Transport)) aws.HTTPClient
}

// Clients holds the SDK clients the runner talks to.
type Clients struct {
	ECS  *ecs.Client
	Logs *cloudwatchlogs.Client
	SSM  *ssm.Client
	STS  *sts.Client
}

// LoadConfig resolves an aws.Config from opts.
func LoadConfig(ctx context.Context, opts Options) (aws.Config, error) {
	if opts.Region == "" {
		return aws.Config{}, errors.New("aws region is required")
	}
	if (opts.AccessKeyID == "") != (opts.SecretAccessKey == "") {
		return aws.Config{}, errors.New("aws access key id and secret access key must be set together")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	switch {
	case opts.AccessKeyID != "":
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	case opts.Profile != "":
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	case opts.EndpointURL != "":
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if opts.HTTPClient != nil {
		client, err := withResolvedTransport(cfg.HTTPClient, opts.HTTPClient)
		if err != nil {
			return aws.Config{}, err
		}
		cfg.HTTPClient = client
	}
	return cfg, nil
}

// withResolvedTransport swaps in custom. The SDK only sets an HTTP client
// during loading when it applied a CA bundle (AWS_CA_BUNDLE or a profile
// ca_bundle), and it can only do so on its own buildable client, so those
// TLS settings are copied onto custom.
func withResolvedTransport(resolved, custom aws.HTTPClient) (aws.HTTPClient, error) {
	buildable, ok := resolved.(*awshttp.BuildableClient)
	if !ok {
		return custom, nil
	}
	tlsConfig := buildable.GetTransport().TLSClientConfig
	if tlsConfig == nil {
		return custom, nil
	}
	apply := func(tr *http.Transport) { tr.TLSClientConfig = tlsConfig.Clone() }
	switch c := custom.(type) {
	case *awshttp.BuildableClient:
		return c.WithTransportOptions(apply), nil
	case TransportConfigurer:
		return c.WithTransportOptions(apply), nil
	}
	return nil, fmt.Errorf("apply custom CA bundle: %T has no WithTransportOptions", custom)
}

// NewClients builds every client from cfg, honoring an endpoint override.
func NewClients(cfg aws.Config, endpointURL string) *Clients {
	if endpointURL == "" {
		return &Clients{
			ECS:  ecs.NewFromConfig(cfg),
			Logs: cloudwatchlogs.NewFromConfig(cfg),
			SSM:  ssm.NewFromConfig(cfg),
			STS:  sts.NewFromConfig(cfg),
		}
	}
	endpoint := aws.String(endpointURL)
	return &Clients{
		ECS:  ecs.NewFromConfig(cfg, func(o *ecs.Options) { o.BaseEndpoint = endpoint }),
		Logs: cloudwatchlogs.NewFromConfig(cfg, func(o *cloudwatchlogs.Options) { o.BaseEndpoint = endpoint }),
		SSM:  ssm.NewFromConfig(cfg, func(o *ssm.Options) { o.BaseEndpoint = endpoint }),
		STS:  sts.NewFromConfig(cfg, func(o *sts.Options) { o.BaseEndpoint = endpoint }),
	}
}

// New loads configuration and builds the clients in one step.
func New(ctx context.Context, opts Options) (*Clients, error) {
	cfg, err := LoadConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return NewClients(cfg, opts.EndpointURL), nil
}

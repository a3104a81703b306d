package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Options select the AWS region and, for operators, a named profile.
type Options struct {
	Region  string
	Profile string
}

// Clients holds one SDK client per service the automation talks to.
type Clients struct {
	Region         string
	EC2            *ec2.Client
	SSM            *ssm.Client
	SNS            *sns.Client
	CloudWatch     *cloudwatch.Client
	SecretsManager *secretsmanager.Client
	STS            *sts.Client
}

// New loads the default credential chain and builds the service clients.
func New(ctx context.Context, opts Options) (*Clients, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("no AWS region configured")
	}

	return &Clients{
		Region:         cfg.Region,
		EC2:            ec2.NewFromConfig(cfg),
		SSM:            ssm.NewFromConfig(cfg),
		SNS:            sns.NewFromConfig(cfg),
		CloudWatch:     cloudwatch.NewFromConfig(cfg),
		SecretsManager: secretsmanager.NewFromConfig(cfg),
		STS:            sts.NewFromConfig(cfg),
	}, nil
}

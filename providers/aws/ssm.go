package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/picklr-io/vpnpilot/internal/store"
)

// SSMAPI is the subset of the SSM client used for parameters.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	DeleteParameter(ctx context.Context, params *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error)
}

// ParameterStore implements store.SecureStore on SSM Parameter Store.
// Parameter Store rejects empty values, so writing "" deletes the parameter;
// every reader treats absent and empty alike.
type ParameterStore struct {
	client   SSMAPI
	kmsKeyID string
}

var _ store.SecureStore = (*ParameterStore)(nil)

// NewParameterStore creates a store. kmsKeyID encrypts SecureString values;
// empty uses the account's default SSM key.
func NewParameterStore(client SSMAPI, kmsKeyID string) *ParameterStore {
	return &ParameterStore{client: client, kmsKeyID: kmsKeyID}
}

func (p *ParameterStore) Get(ctx context.Context, key string) (string, error) {
	resp, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(key),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var nf *ssmtypes.ParameterNotFound
		if errors.As(err, &nf) {
			return "", fmt.Errorf("%s: %w", key, store.ErrNotFound)
		}
		return "", fmt.Errorf("failed to get parameter %s: %w", key, err)
	}
	if resp.Parameter == nil {
		return "", fmt.Errorf("%s: %w", key, store.ErrNotFound)
	}
	return aws.ToString(resp.Parameter.Value), nil
}

func (p *ParameterStore) Put(ctx context.Context, key, value string) error {
	if value == "" {
		return p.Delete(ctx, key)
	}
	return p.put(ctx, &ssm.PutParameterInput{
		Name:      aws.String(key),
		Value:     aws.String(value),
		Type:      ssmtypes.ParameterTypeString,
		Overwrite: aws.Bool(true),
	})
}

func (p *ParameterStore) PutSecure(ctx context.Context, key, value string) error {
	if value == "" {
		return p.Delete(ctx, key)
	}
	input := &ssm.PutParameterInput{
		Name:      aws.String(key),
		Value:     aws.String(value),
		Type:      ssmtypes.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	}
	if p.kmsKeyID != "" {
		input.KeyId = aws.String(p.kmsKeyID)
	}
	return p.put(ctx, input)
}

func (p *ParameterStore) put(ctx context.Context, input *ssm.PutParameterInput) error {
	if _, err := p.client.PutParameter(ctx, input); err != nil {
		return fmt.Errorf("failed to put parameter %s: %w", aws.ToString(input.Name), err)
	}
	return nil
}

// Delete is a no-op for absent parameters.
func (p *ParameterStore) Delete(ctx context.Context, key string) error {
	_, err := p.client.DeleteParameter(ctx, &ssm.DeleteParameterInput{Name: aws.String(key)})
	if err != nil {
		var nf *ssmtypes.ParameterNotFound
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("failed to delete parameter %s: %w", key, err)
	}
	return nil
}

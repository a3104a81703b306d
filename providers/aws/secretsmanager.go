package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretReader resolves secret strings.
type SecretReader struct {
	client SecretsManagerAPI
}

func NewSecretReader(client SecretsManagerAPI) *SecretReader {
	return &SecretReader{client: client}
}

// Secret returns the secret string for id. When field is set the secret must
// be a JSON object and the named string field is returned.
func (s *SecretReader) Secret(ctx context.Context, id, field string) (string, error) {
	resp, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s: %w", id, err)
	}
	raw := aws.ToString(resp.SecretString)
	if raw == "" {
		return "", fmt.Errorf("secret %s has no string value", id)
	}
	if field == "" {
		return raw, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", fmt.Errorf("secret %s is not a JSON object: %w", id, err)
	}
	v, ok := fields[field].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("secret %s has no string field %q", id, field)
	}
	return v, nil
}

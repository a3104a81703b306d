package aws

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklr-io/vpnpilot/internal/gates"
	"github.com/picklr-io/vpnpilot/internal/store"
)

type fakeParam struct {
	value string
	typ   ssmtypes.ParameterType
	keyID string
}

type fakeSSM struct {
	params     map[string]fakeParam
	decryption []bool
}

func newFakeSSM() *fakeSSM {
	return &fakeSSM{params: map[string]fakeParam{}}
}

func (f *fakeSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.decryption = append(f.decryption, aws.ToBool(in.WithDecryption))
	p, ok := f.params[aws.ToString(in.Name)]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found")}
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Name: in.Name, Value: aws.String(p.value), Type: p.typ}}, nil
}

func (f *fakeSSM) PutParameter(ctx context.Context, in *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.params[aws.ToString(in.Name)] = fakeParam{value: aws.ToString(in.Value), typ: in.Type, keyID: aws.ToString(in.KeyId)}
	return &ssm.PutParameterOutput{Version: 1}, nil
}

func (f *fakeSSM) DeleteParameter(ctx context.Context, in *ssm.DeleteParameterInput, _ ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error) {
	name := aws.ToString(in.Name)
	if _, ok := f.params[name]; !ok {
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found")}
	}
	delete(f.params, name)
	return &ssm.DeleteParameterOutput{}, nil
}

func TestParameterStore_GetPut(t *testing.T) {
	fake := newFakeSSM()
	ps := NewParameterStore(fake, "")
	ctx := context.Background()

	_, err := ps.Get(ctx, "/vpn/endpoint/staging/state")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, ps.Put(ctx, "/vpn/endpoint/staging/state", `{"associated":true}`))
	got, err := ps.Get(ctx, "/vpn/endpoint/staging/state")
	require.NoError(t, err)
	assert.Equal(t, `{"associated":true}`, got)
	assert.Equal(t, ssmtypes.ParameterTypeString, fake.params["/vpn/endpoint/staging/state"].typ)
	assert.Equal(t, []bool{true, true}, fake.decryption)
}

func TestParameterStore_PutSecureUsesKey(t *testing.T) {
	fake := newFakeSSM()
	ps := NewParameterStore(fake, "alias/vpn-automation")

	require.NoError(t, ps.PutSecure(context.Background(), store.SlackWebhookKey, "https://hooks.slack.example/T000"))
	p := fake.params[store.SlackWebhookKey]
	assert.Equal(t, ssmtypes.ParameterTypeSecureString, p.typ)
	assert.Equal(t, "alias/vpn-automation", p.keyID)
}

func TestParameterStore_EmptyValueDeletes(t *testing.T) {
	fake := newFakeSSM()
	ps := NewParameterStore(fake, "")
	ctx := context.Background()
	key := "/vpn/automation/cooldown/staging"

	require.NoError(t, ps.Put(ctx, key, "2026-06-02T03:00:00Z"))
	require.NoError(t, ps.Put(ctx, key, ""))
	assert.NotContains(t, fake.params, key)

	require.NoError(t, ps.Delete(ctx, key))
}

func TestParameterStore_BacksMarkers(t *testing.T) {
	ps := NewParameterStore(newFakeSSM(), "")
	markers := gates.NewMarkerStore(ps, "production")
	ctx := context.Background()
	now := time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, markers.SetCooldown(ctx, now))
	cd, err := markers.Cooldown(ctx)
	require.NoError(t, err)
	assert.True(t, cd.Equal(now))

	require.NoError(t, markers.ClearCooldown(ctx))
	cd, err = markers.Cooldown(ctx)
	require.NoError(t, err)
	assert.True(t, cd.IsZero())
}

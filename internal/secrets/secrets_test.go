package secrets

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rowsync/pkg/errors"
)

type fakeManager struct {
	secrets map[string]string
	err     error
	calls   int
}

func (f *fakeManager) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.secrets[aws.ToString(in.SecretId)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "not found"}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestParseRef(t *testing.T) {
	ref, err := ParseRef("aws-sm://prod/kiotviet#client_secret")
	require.NoError(t, err)
	assert.Equal(t, Ref{SecretID: "prod/kiotviet", Key: "client_secret"}, ref)

	ref, err = ParseRef("aws-sm://plain")
	require.NoError(t, err)
	assert.Empty(t, ref.Key)

	_, err = ParseRef("aws-sm://#key")
	assert.True(t, errors.IsValidationError(err))

	_, err = ParseRef("literal")
	assert.True(t, errors.IsValidationError(err))
}

func TestResolve(t *testing.T) {
	fake := &fakeManager{secrets: map[string]string{
		"prod/kiotviet": `{"client_id":"cid","client_secret":"s3cret"}`,
		"prod/token":    "raw-token",
	}}
	r := NewResolver(fake)
	ctx := context.Background()

	v, err := r.Resolve(ctx, "literal-value")
	require.NoError(t, err)
	assert.Equal(t, "literal-value", v)
	assert.Zero(t, fake.calls)

	v, err = r.Resolve(ctx, "aws-sm://prod/kiotviet#client_secret")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	v, err = r.Resolve(ctx, "aws-sm://prod/kiotviet#client_id")
	require.NoError(t, err)
	assert.Equal(t, "cid", v)
	assert.Equal(t, 1, fake.calls, "secret is cached")

	v, err = r.Resolve(ctx, "aws-sm://prod/token")
	require.NoError(t, err)
	assert.Equal(t, "raw-token", v)

	_, err = r.Resolve(ctx, "aws-sm://prod/kiotviet#missing")
	assert.True(t, errors.IsNotFound(err))

	_, err = r.Resolve(ctx, "aws-sm://prod/token#key")
	var pe *errors.ParseError
	assert.ErrorAs(t, err, &pe)

	_, err = r.Resolve(ctx, "aws-sm://prod/unknown#x")
	assert.True(t, errors.IsNotFound(err))
}

func TestResolveAccessDenied(t *testing.T) {
	r := NewResolver(&fakeManager{err: &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "denied"}})
	_, err := r.Resolve(context.Background(), "aws-sm://prod/x#k")
	assert.True(t, errors.IsAuthentication(err))
}

func TestResolveWithoutClient(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.Resolve(context.Background(), "aws-sm://prod/x")
	var ce *errors.ConfigError
	assert.ErrorAs(t, err, &ce)
}

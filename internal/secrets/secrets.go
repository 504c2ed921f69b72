// Package secrets resolves credential references held in job files. A
// reference has the form aws-sm://<secret-id>#<json-key>; the key selects a
// field of a JSON secret and may be omitted to use the whole secret string.
// Values without the prefix pass through unchanged.
package secrets

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/tidwall/gjson"

	"github.com/agentstation/rowsync/pkg/errors"
)

// Scheme prefixes a Secrets Manager reference.
const Scheme = "aws-sm://"

// AWS error codes mapped onto the error taxonomy.
const (
	resourceNotFound = "ResourceNotFoundException"
	accessDenied     = "AccessDeniedException"
)

// ManagerAPI is the subset of the Secrets Manager client used here.
type ManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// Ref is a parsed secret reference.
type Ref struct {
	SecretID string
	Key      string
}

// IsRef reports whether value is a secret reference.
func IsRef(value string) bool {
	return strings.HasPrefix(value, Scheme)
}

// ParseRef parses an aws-sm:// reference.
func ParseRef(value string) (Ref, error) {
	if !IsRef(value) {
		return Ref{}, errors.NewValidationError("secret", value, "not an "+Scheme+" reference")
	}
	rest := strings.TrimPrefix(value, Scheme)
	id, key, _ := strings.Cut(rest, "#")
	if id == "" {
		return Ref{}, errors.NewValidationError("secret", value, "secret id is required")
	}
	return Ref{SecretID: id, Key: key}, nil
}

// Resolver fetches referenced secrets, reading each secret at most once.
type Resolver struct {
	api ManagerAPI

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver creates a Resolver on the given client.
func NewResolver(api ManagerAPI) *Resolver {
	return &Resolver{api: api, cache: make(map[string]string)}
}

// NewAWSResolver creates a Resolver using the default AWS configuration
// chain. region overrides the configured region when set.
func NewAWSResolver(ctx context.Context, region string) (*Resolver, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.NewConfigError("aws", "failed to load AWS config", err)
	}
	return NewResolver(secretsmanager.NewFromConfig(cfg)), nil
}

// Resolve returns value itself, or the secret it references.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	ref, err := ParseRef(value)
	if err != nil {
		return "", err
	}
	secret, err := r.secret(ctx, ref.SecretID)
	if err != nil {
		return "", err
	}
	if ref.Key == "" {
		return secret, nil
	}
	if !gjson.Valid(secret) {
		return "", errors.NewParseError("json", ref.SecretID, "secret is not a JSON object", nil)
	}
	res := gjson.Get(secret, ref.Key)
	if !res.Exists() {
		return "", errors.NewNotFoundError("secret key", ref.SecretID+"#"+ref.Key)
	}
	return res.String(), nil
}

func (r *Resolver) secret(ctx context.Context, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.cache[id]; ok {
		return v, nil
	}
	if r.api == nil {
		return "", errors.NewConfigError("secrets", "no Secrets Manager client configured", nil)
	}
	out, err := r.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		return "", mapError(id, err)
	}
	v := aws.ToString(out.SecretString)
	if v == "" {
		return "", errors.NewResourceError("read", "secret", id, errors.New("secret value is empty"))
	}
	r.cache[id] = v
	return v, nil
}

func mapError(id string, err error) error {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case resourceNotFound:
			return errors.NewNotFoundError("secret", id)
		case accessDenied:
			return errors.NewAuthenticationError("aws", "iam", "access denied to secret "+id, err)
		}
	}
	return errors.WrapResource("get", "secret", id, err)
}

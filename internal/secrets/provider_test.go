package secrets_test

import (
	"context"
	"errors"
	"testing"

	"github.com/straye-as/pipeline-api/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeVault map[string]string

func (f fakeVault) GetSecret(_ context.Context, name string) (string, error) {
	value, ok := f[name]
	if !ok {
		return "", errors.New("SecretNotFound")
	}
	return value, nil
}

func TestResolveSource(t *testing.T) {
	assert.Equal(t, secrets.SourceEnvironment, secrets.ResolveSource(secrets.SourceAuto, "development"))
	assert.Equal(t, secrets.SourceEnvironment, secrets.ResolveSource(secrets.SourceAuto, ""))
	assert.Equal(t, secrets.SourceVault, secrets.ResolveSource(secrets.SourceAuto, "production"))
	assert.Equal(t, secrets.SourceVault, secrets.ResolveSource(secrets.SourceVault, "development"))
	assert.Equal(t, secrets.SourceEnvironment, secrets.ResolveSource(secrets.SourceEnvironment, "staging"))
}

func TestNewProvider_Environment(t *testing.T) {
	t.Setenv("PIPELINE_TEST_SECRET", "from-env")

	p, err := secrets.NewProvider(&secrets.ProviderConfig{Source: secrets.SourceAuto, Environment: "development"}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.IsVaultEnabled())

	value, err := p.Get(context.Background(), "PIPELINE_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)

	_, err = p.Get(context.Background(), "PIPELINE_TEST_MISSING")
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)
}

func TestNewProvider_VaultNeedsName(t *testing.T) {
	_, err := secrets.NewProvider(&secrets.ProviderConfig{Source: secrets.SourceVault}, zap.NewNop())
	assert.Error(t, err)

	_, err = secrets.NewProvider(&secrets.ProviderConfig{Source: "consul"}, zap.NewNop())
	assert.Error(t, err)
}

func TestProvider_LookupPrefersEnv(t *testing.T) {
	p := secrets.NewVaultProvider(fakeVault{"jwt-signing-secret": "vault-value"}, zap.NewNop())
	ctx := context.Background()

	value, err := p.Lookup(ctx, "jwt-signing-secret", "PIPELINE_TEST_JWT")
	require.NoError(t, err)
	assert.Equal(t, "vault-value", value)

	t.Setenv("PIPELINE_TEST_JWT", "env-value")
	value, err = p.Lookup(ctx, "jwt-signing-secret", "PIPELINE_TEST_JWT")
	require.NoError(t, err)
	assert.Equal(t, "env-value", value)
}

func TestProvider_Apply(t *testing.T) {
	p := secrets.NewVaultProvider(fakeVault{"db-password": "s3cret", "empty": ""}, zap.NewNop())
	ctx := context.Background()

	password, host, other := "", "localhost", "keep"
	n, err := p.Apply(ctx, []secrets.Binding{
		{Secret: "db-password", Target: &password, Required: true},
		{Secret: "db-host", Target: &host},
		{Secret: "empty", Target: &other},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "s3cret", password)
	assert.Equal(t, "localhost", host, "unresolved optional binding keeps the configured value")
	assert.Equal(t, "keep", other)

	_, err = p.Apply(ctx, []secrets.Binding{{Secret: "missing", Target: &other, Required: true}})
	assert.Error(t, err)
}

package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// ErrSecretNotFound is returned when a secret has no value in the active source
var ErrSecretNotFound = errors.New("secret not found")

// Source selects where secrets are read from
type Source string

const (
	SourceEnvironment Source = "environment"
	SourceVault       Source = "vault"
	// SourceAuto picks the environment in development and Key Vault everywhere else
	SourceAuto Source = "auto"
)

// ResolveSource turns SourceAuto into a concrete source for the given app environment
func ResolveSource(source Source, environment string) Source {
	if source != SourceAuto {
		return source
	}
	switch environment {
	case "", "development", "local", "test":
		return SourceEnvironment
	default:
		return SourceVault
	}
}

// Fetcher reads a single secret by name. VaultClient is the production implementation.
type Fetcher interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// Binding maps a secret onto a config field.
// Env, when set, is checked before the source and overrides it.
type Binding struct {
	Secret   string
	Env      string
	Target   *string
	Required bool
}

// Provider resolves secrets from the configured source
type Provider struct {
	source Source
	vault  Fetcher
	logger *zap.Logger
}

// ProviderConfig holds configuration for the secrets provider
type ProviderConfig struct {
	Source       Source
	VaultName    string
	Environment  string
	CacheEnabled bool
	CacheTTL     time.Duration
}

// NewProvider builds a provider, creating a Key Vault client when the resolved source is vault
func NewProvider(cfg *ProviderConfig, logger *zap.Logger) (*Provider, error) {
	source := ResolveSource(cfg.Source, cfg.Environment)

	var vault Fetcher
	switch source {
	case SourceEnvironment:
	case SourceVault:
		client, err := NewVaultClient(&VaultConfig{
			VaultName:    cfg.VaultName,
			CacheEnabled: cfg.CacheEnabled,
			CacheTTL:     cfg.CacheTTL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vault client: %w", err)
		}
		vault = client
	default:
		return nil, fmt.Errorf("unknown secret source: %s", source)
	}

	logger.Info("Secrets provider initialized",
		zap.String("source", string(source)),
		zap.String("environment", cfg.Environment),
	)
	return &Provider{source: source, vault: vault, logger: logger}, nil
}

// NewVaultProvider wraps an existing fetcher as a vault-backed provider
func NewVaultProvider(fetcher Fetcher, logger *zap.Logger) *Provider {
	return &Provider{source: SourceVault, vault: fetcher, logger: logger}
}

// Source returns the resolved secret source
func (p *Provider) Source() Source {
	return p.source
}

// IsVaultEnabled reports whether secrets come from Key Vault
func (p *Provider) IsVaultEnabled() bool {
	return p.source == SourceVault
}

// Get reads a secret from the active source. In environment mode the name is the variable name.
func (p *Provider) Get(ctx context.Context, name string) (string, error) {
	var (
		value string
		err   error
	)
	switch p.source {
	case SourceEnvironment:
		value = os.Getenv(name)
	case SourceVault:
		if p.vault == nil {
			return "", fmt.Errorf("vault client not initialized")
		}
		value, err = p.vault.GetSecret(ctx, name)
	default:
		return "", fmt.Errorf("unknown secret source: %s", p.source)
	}
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return value, nil
}

// Lookup prefers the env override, then the active source
func (p *Provider) Lookup(ctx context.Context, secret, env string) (string, error) {
	if env != "" {
		if value := os.Getenv(env); value != "" {
			return value, nil
		}
	}
	if p.source == SourceEnvironment && env != "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, env)
	}
	return p.Get(ctx, secret)
}

// Apply resolves every binding into its target and returns how many were set.
// Optional bindings that cannot be resolved leave the target untouched.
func (p *Provider) Apply(ctx context.Context, bindings []Binding) (int, error) {
	applied := 0
	for _, b := range bindings {
		value, err := p.Lookup(ctx, b.Secret, b.Env)
		if err != nil {
			if b.Required {
				return applied, fmt.Errorf("secret %s: %w", b.Secret, err)
			}
			p.logger.Debug("Secret not resolved, keeping configured value",
				zap.String("secret_name", b.Secret),
				zap.String("env_name", b.Env),
				zap.Error(err),
			)
			continue
		}
		*b.Target = value
		applied++
	}
	return applied, nil
}

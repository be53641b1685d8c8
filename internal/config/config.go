package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/straye-as/pipeline-api/internal/secrets"
	"go.uber.org/zap"
)

// Config holds all application configuration
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	DataWarehouse DataWarehouseConfig
	Auth          AuthConfig
	AzureAd       AzureAdConfig
	ApiKey        ApiKeyConfig
	Storage       StorageConfig
	Secrets       SecretsConfig
	Logging       LoggingConfig
	Server        ServerConfig
	CORS          CORSConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
	Jobs          JobsConfig
	Notifications NotificationsConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Port        int
}

type DatabaseConfig struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	// MigrateOnStart applies pending goose migrations before serving
	MigrateOnStart  bool
}

// DataWarehouseConfig holds configuration for the MS SQL Server data warehouse
// This connection is optional and read-only
type DataWarehouseConfig struct {
	// Enabled controls whether the data warehouse connection is attempted
	Enabled bool
	// URL is the connection URL in format host:port/database (from WAREHOUSE-URL secret)
	URL string
	// User is the database username (from WAREHOUSE-USERNAME secret)
	User string
	// Password is the database password (from WAREHOUSE-PASSWORD secret)
	Password string
	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int
	// MaxIdleConns is the maximum number of connections in the idle connection pool
	MaxIdleConns int
	// ConnMaxLifetime is the maximum amount of time a connection may be reused (seconds)
	ConnMaxLifetime int
	// QueryTimeout is the default timeout for queries (seconds)
	QueryTimeout int
	// InvoiceTable is the table holding invoice lines keyed by contract reference
	InvoiceTable string
}

// AuthConfig holds settings for portal tokens signed by this service (HS256).
// Azure AD tokens (RS256) are validated with AzureAdConfig instead.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
	// ActingRoleHeader lets a user with several roles pick one per request
	ActingRoleHeader string
}

type AzureAdConfig struct {
	TenantId       string
	ClientId       string
	InstanceUrl    string
	RequiredScopes string
}

// Enabled reports whether Azure AD tokens should be accepted
func (a *AzureAdConfig) Enabled() bool {
	return a.TenantId != ""
}

type ApiKeyConfig struct {
	SecretName string
	Value      string // Loaded from secrets or environment
}

type StorageConfig struct {
	Mode                  string
	LocalBasePath         string
	CloudConnectionString string
	CloudContainer        string
	MaxUploadSizeMB       int64
}

type SecretsConfig struct {
	// Source determines where secrets are loaded from: "environment", "vault", or "auto"
	// "auto" uses environment in development, vault in staging/production
	Source       string
	KeyVaultName string
	CacheEnabled bool
	CacheTTL     int // seconds
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	ReadTimeout    int
	WriteTimeout   int
	RequestTimeout int
	EnableSwagger  bool
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	// AllowedOrigins is a list of allowed origins for CORS requests
	// Use "*" to allow all origins (not recommended for production)
	AllowedOrigins []string
	// AllowedMethods is a list of allowed HTTP methods
	AllowedMethods []string
	// AllowedHeaders is a list of allowed request headers
	AllowedHeaders []string
	// ExposedHeaders is a list of headers exposed to the client
	ExposedHeaders []string
	// AllowCredentials indicates whether credentials are allowed
	AllowCredentials bool
	// MaxAge is the max age (in seconds) for preflight cache
	MaxAge int
}

// SecurityConfig holds security header configuration
type SecurityConfig struct {
	// EnableHSTS enables HTTP Strict Transport Security header
	EnableHSTS bool
	// HSTSMaxAge is the max age for HSTS in seconds (default: 31536000 = 1 year)
	HSTSMaxAge int
	// HSTSIncludeSubdomains includes subdomains in HSTS
	HSTSIncludeSubdomains bool
	// HSTSPreload enables HSTS preload
	HSTSPreload bool
	// ContentSecurityPolicy sets the Content-Security-Policy header
	ContentSecurityPolicy string
	// FrameOptions sets the X-Frame-Options header (DENY, SAMEORIGIN, or empty to disable)
	FrameOptions string
	// ContentTypeNosniff enables X-Content-Type-Options: nosniff
	ContentTypeNosniff bool
	// XSSProtection sets the X-XSS-Protection header
	XSSProtection string
	// ReferrerPolicy sets the Referrer-Policy header
	ReferrerPolicy string
	// PermissionsPolicy sets the Permissions-Policy header
	PermissionsPolicy string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Enabled enables rate limiting
	Enabled bool
	// RequestsPerMinute is the default rate limit for unauthenticated requests (per IP)
	RequestsPerMinute int
	// RequestsPerMinuteAuth is the rate limit for authenticated requests (per user)
	RequestsPerMinuteAuth int
	// BurstSize is the maximum burst size allowed
	BurstSize int
	// WhitelistIPs is a list of IPs that bypass rate limiting
	WhitelistIPs []string
	// WhitelistPaths is a list of paths that bypass rate limiting (e.g., /health)
	WhitelistPaths []string
}

// JobsConfig holds cron schedules for background jobs. Expressions accept an
// optional seconds field.
type JobsConfig struct {
	Enabled bool
	// CloseRequestReminderCron schedules the pending close request reminder
	CloseRequestReminderCron string
	// CloseRequestReminderAgeHours is how long a close request may stay Pending before a reminder
	CloseRequestReminderAgeHours int
	// BillingSyncCron schedules the data warehouse invoiced amount sync
	BillingSyncCron string
	// BillingSyncTimeout bounds a single sync run (seconds)
	BillingSyncTimeout int
	// BillingSyncConcurrency bounds concurrent warehouse queries
	BillingSyncConcurrency int
	// AuditRetentionCron schedules audit log cleanup
	AuditRetentionCron string
	// AuditRetentionDays is how long audit log entries are kept
	AuditRetentionDays int
}

// CloseRequestReminderAge returns the reminder age as duration
func (j *JobsConfig) CloseRequestReminderAge() time.Duration {
	return time.Duration(j.CloseRequestReminderAgeHours) * time.Hour
}

// BillingSyncTimeoutDuration returns the billing sync timeout as duration
func (j *JobsConfig) BillingSyncTimeoutDuration() time.Duration {
	return time.Duration(j.BillingSyncTimeout) * time.Second
}

// NotificationsConfig holds in-app notification delivery settings
type NotificationsConfig struct {
	// DispatchTimeout bounds writing one event's notifications (seconds)
	DispatchTimeout int
}

// DispatchTimeoutDuration returns the dispatch timeout as duration
func (n *NotificationsConfig) DispatchTimeoutDuration() time.Duration {
	return time.Duration(n.DispatchTimeout) * time.Second
}

// ConnectionString builds PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// ReadTimeoutDuration returns read timeout as duration
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns write timeout as duration
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RequestTimeoutDuration returns request timeout as duration
func (s *ServerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

// ConnMaxLifetimeDuration returns connection max lifetime as duration
func (d *DatabaseConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(d.ConnMaxLifetime) * time.Second
}

// ConnMaxLifetimeDuration returns connection max lifetime as duration
func (d *DataWarehouseConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(d.ConnMaxLifetime) * time.Second
}

// QueryTimeoutDuration returns query timeout as duration
func (d *DataWarehouseConfig) QueryTimeoutDuration() time.Duration {
	return time.Duration(d.QueryTimeout) * time.Second
}

// Load loads configuration from file and environment variables
// This is a basic load that doesn't fetch secrets from vault
// Use LoadWithSecrets for full secret resolution
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from config file
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load API key from environment if not in config
	if cfg.ApiKey.Value == "" {
		cfg.ApiKey.Value = v.GetString("ADMIN_API_KEY")
	}

	// Load Azure AD config from environment if not in config
	if cfg.AzureAd.TenantId == "" {
		cfg.AzureAd.TenantId = v.GetString("AZURE_TENANT_ID")
	}
	if cfg.AzureAd.ClientId == "" {
		cfg.AzureAd.ClientId = v.GetString("AZURE_CLIENT_ID")
	}
	if cfg.AzureAd.RequiredScopes == "" {
		cfg.AzureAd.RequiredScopes = v.GetString("AZURE_REQUIRED_SCOPES")
	}

	// Load JWT signing secret from environment if not in config
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = v.GetString("JWT_SECRET")
	}

	// Load Azure Key Vault name from environment if not in config
	if cfg.Secrets.KeyVaultName == "" {
		cfg.Secrets.KeyVaultName = v.GetString("AZURE_KEY_VAULT_NAME")
	}

	// Check for DATAWAREHOUSE_ENABLED env var override
	if v.GetBool("DATAWAREHOUSE_ENABLED") {
		cfg.DataWarehouse.Enabled = true
	}

	return &cfg, nil
}

// LoadWithSecrets loads configuration and overlays secrets from Azure Key Vault.
// secrets.source=auto reads Key Vault outside development; "environment" never does.
// Warehouse credentials live only in Key Vault and are read whenever the warehouse is
// enabled and a vault is named, whatever the source.
func LoadWithSecrets(ctx context.Context, logger *zap.Logger) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	source := secrets.ResolveSource(secrets.Source(cfg.Secrets.Source), cfg.App.Environment)
	useVault := source == secrets.SourceVault
	warehouseFromVault := cfg.DataWarehouse.Enabled && cfg.Secrets.KeyVaultName != ""

	if !useVault && !warehouseFromVault {
		logger.Info("Using environment variables for secrets",
			zap.String("environment", cfg.App.Environment),
		)
		return cfg, nil
	}
	if cfg.Secrets.KeyVaultName == "" {
		return nil, fmt.Errorf("AZURE_KEY_VAULT_NAME is required when secrets are read from Key Vault")
	}

	provider, err := secrets.NewProvider(&secrets.ProviderConfig{
		Source:       secrets.SourceVault,
		VaultName:    cfg.Secrets.KeyVaultName,
		Environment:  cfg.App.Environment,
		CacheEnabled: cfg.Secrets.CacheEnabled,
		CacheTTL:     time.Duration(cfg.Secrets.CacheTTL) * time.Second,
	}, logger)
	if err != nil {
		if useVault {
			return nil, err
		}
		logger.Warn("Key Vault unavailable, disabling data warehouse", zap.Error(err))
		cfg.DataWarehouse.Enabled = false
		return cfg, nil
	}

	if err := ApplySecrets(ctx, cfg, provider, useVault, logger); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplySecrets writes vault secrets into cfg. Application secrets are only applied when
// includeApp is set. A warehouse without readable credentials is disabled, not fatal.
func ApplySecrets(ctx context.Context, cfg *Config, provider *secrets.Provider, includeApp bool, logger *zap.Logger) error {
	if includeApp {
		n, err := provider.Apply(ctx, appSecretBindings(cfg))
		if err != nil {
			return fmt.Errorf("failed to load secrets: %w", err)
		}
		logger.Info("Secrets loaded from Key Vault", zap.Int("count", n))
	}

	if cfg.DataWarehouse.Enabled {
		if _, err := provider.Apply(ctx, warehouseSecretBindings(cfg)); err != nil {
			logger.Warn("Data warehouse credentials unavailable, disabling billing sync", zap.Error(err))
			cfg.DataWarehouse.Enabled = false
		}
	}
	return nil
}

func appSecretBindings(cfg *Config) []secrets.Binding {
	return []secrets.Binding{
		{Secret: "POSTGRES-MAIN-HOST", Env: "DATABASE_HOST", Target: &cfg.Database.Host},
		{Secret: "POSTGRES-MAIN-USER", Env: "DATABASE_USER", Target: &cfg.Database.User},
		{Secret: "POSTGRES-MAIN-PASSWORD", Env: "DATABASE_PASSWORD", Target: &cfg.Database.Password, Required: true},
		{Secret: "azure-tenant-id", Env: "AZURE_TENANT_ID", Target: &cfg.AzureAd.TenantId},
		{Secret: "azure-client-id", Env: "AZURE_CLIENT_ID", Target: &cfg.AzureAd.ClientId},
		{Secret: "jwt-signing-secret", Env: "JWT_SECRET", Target: &cfg.Auth.JWTSecret},
		{Secret: cfg.ApiKey.SecretName, Env: "ADMIN_API_KEY", Target: &cfg.ApiKey.Value},
		{Secret: "storage-connection-string", Env: "STORAGE_CLOUDCONNECTIONSTRING", Target: &cfg.Storage.CloudConnectionString},
	}
}

// warehouse credentials have no env override
func warehouseSecretBindings(cfg *Config) []secrets.Binding {
	return []secrets.Binding{
		{Secret: "WAREHOUSE-URL", Target: &cfg.DataWarehouse.URL, Required: true},
		{Secret: "WAREHOUSE-USERNAME", Target: &cfg.DataWarehouse.User, Required: true},
		{Secret: "WAREHOUSE-PASSWORD", Target: &cfg.DataWarehouse.Password, Required: true},
	}
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "Straye Pipeline API")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.port", 8080)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "pipeline")
	v.SetDefault("database.user", "pipeline_user")
	v.SetDefault("database.password", "pipeline_password")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 300)
	v.SetDefault("database.migrateOnStart", false)

	// Data warehouse defaults (MS SQL Server - optional, read-only)
	v.SetDefault("dataWarehouse.enabled", false) // Disabled by default
	v.SetDefault("dataWarehouse.maxOpenConns", 10)
	v.SetDefault("dataWarehouse.maxIdleConns", 2)
	v.SetDefault("dataWarehouse.connMaxLifetime", 300) // 5 minutes
	v.SetDefault("dataWarehouse.queryTimeout", 30)     // 30 seconds default query timeout
	v.SetDefault("dataWarehouse.invoiceTable", "dbo.contract_invoice_lines")

	// Auth defaults
	v.SetDefault("auth.issuer", "straye-pipeline")
	v.SetDefault("auth.audience", "straye-pipeline-api")
	v.SetDefault("auth.actingRoleHeader", "X-Acting-Role")

	// Secrets defaults
	v.SetDefault("apiKey.secretName", "admin-api-key")
	v.SetDefault("secrets.source", "auto")
	v.SetDefault("secrets.cacheEnabled", true)
	v.SetDefault("secrets.cacheTTL", 300) // 5 minutes

	// Azure AD defaults
	v.SetDefault("azuread.instanceUrl", "https://login.microsoftonline.com/")

	// Storage defaults
	v.SetDefault("storage.mode", "local")
	v.SetDefault("storage.localBasePath", "./storage")
	v.SetDefault("storage.maxUploadSizeMB", 50)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Server defaults
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.requestTimeout", 60)
	v.SetDefault("server.enableSwagger", true)

	// CORS defaults - restrictive by default
	// In development, you may want to override with specific origins
	v.SetDefault("cors.allowedOrigins", []string{})
	v.SetDefault("cors.allowedMethods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowedHeaders", []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID", "X-Acting-Role"})
	v.SetDefault("cors.exposedHeaders", []string{"Location", "X-Request-ID"})
	v.SetDefault("cors.allowCredentials", true)
	v.SetDefault("cors.maxAge", 300) // 5 minutes

	// Security header defaults - secure by default
	v.SetDefault("security.enableHSTS", false)    // Disabled by default, enable in production with HTTPS
	v.SetDefault("security.hstsMaxAge", 31536000) // 1 year
	v.SetDefault("security.hstsIncludeSubdomains", true)
	v.SetDefault("security.hstsPreload", false)
	v.SetDefault("security.contentSecurityPolicy", "default-src 'self'")
	v.SetDefault("security.frameOptions", "DENY")
	v.SetDefault("security.contentTypeNosniff", true)
	v.SetDefault("security.xssProtection", "1; mode=block")
	v.SetDefault("security.referrerPolicy", "strict-origin-when-cross-origin")
	v.SetDefault("security.permissionsPolicy", "geolocation=(), microphone=(), camera=()")

	// Rate limiting defaults
	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 60)      // 60 requests per minute for unauthenticated
	v.SetDefault("rateLimit.requestsPerMinuteAuth", 120) // 120 requests per minute for authenticated users
	v.SetDefault("rateLimit.burstSize", 10)              // Allow burst of 10 requests
	v.SetDefault("rateLimit.whitelistIPs", []string{"127.0.0.1", "::1"})
	v.SetDefault("rateLimit.whitelistPaths", []string{"/health", "/health/db", "/health/ready"})

	// Job defaults
	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.closeRequestReminderCron", "0 0 8 * * *") // 08:00 every day
	v.SetDefault("jobs.closeRequestReminderAgeHours", 72)
	v.SetDefault("jobs.billingSyncCron", "0 15 * * * *") // 15 minutes past every hour
	v.SetDefault("jobs.billingSyncTimeout", 300)
	v.SetDefault("jobs.billingSyncConcurrency", 4)
	v.SetDefault("jobs.auditRetentionCron", "0 30 3 * * *")
	v.SetDefault("jobs.auditRetentionDays", 365)

	// Notification defaults
	v.SetDefault("notifications.dispatchTimeout", 10)
}

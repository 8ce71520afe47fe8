package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for the fhir-relay service.
// It is read once at startup and injected into constructors; nothing reads
// the environment after Load returns.
type Config struct {
	ServiceName string // e.g. "fhir-relay"
	Env         string // e.g. "dev", "uat", "prod"
	LogLevel    string // "debug", "info", etc.
	Port        int    // inbound HTTP port
	CORSOrigins string // comma-separated allowed origins

	// Identity provider (OAuth2 client-credentials).
	TenantID     string
	ClientID     string
	ClientSecret string
	Scope        string
	TokenURL     string // defaults from TenantID when unset

	// Downstream FHIR API.
	FHIRBaseURL string
	PageSize    int           // _count for list operations (single oversized page)
	HTTPTimeout time.Duration // per outbound call

	// Token cache: "" (disabled, fresh token per request), "memory", or "redis".
	TokenCache string
	RedisAddr  string
	RedisDB    int
	RedisPass  string

	// Optional client-secret resolution from AWS Secrets Manager.
	// Used when FHIR_CLIENT_SECRET is unset and FHIR_SECRET_NAME is set.
	AWSRegion  string
	SecretName string

	// Optional audit-event publishing. Disabled when NATSURL is empty.
	NATSURL      string
	AuditSubject string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// Load loads configuration from environment variables and optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: GetEnv("SERVICE_NAME", "fhir-relay"),
		Env:         GetEnv("ENV", "dev"),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		Port:        GetEnvInt("PORT", 8080),
		CORSOrigins: GetEnv("CORS_ORIGINS", "*"),

		TenantID:     GetEnv("FHIR_TENANT_ID", ""),
		ClientID:     GetEnv("FHIR_CLIENT_ID", ""),
		ClientSecret: GetEnv("FHIR_CLIENT_SECRET", ""),
		Scope:        GetEnv("FHIR_SCOPE", ""),
		TokenURL:     GetEnv("FHIR_TOKEN_URL", ""),

		FHIRBaseURL: GetEnv("FHIR_BASE_URL", ""),
		PageSize:    GetEnvInt("FHIR_PAGE_SIZE", 500),
		HTTPTimeout: GetEnvDuration("FHIR_HTTP_TIMEOUT", 30*time.Second),

		TokenCache: GetEnv("TOKEN_CACHE", ""),
		RedisAddr:  GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:    GetEnvInt("REDIS_DB", 0),
		RedisPass:  GetEnv("REDIS_PASS", ""),

		AWSRegion:  GetEnv("AWS_REGION", "us-east-2"),
		SecretName: GetEnv("FHIR_SECRET_NAME", ""),

		NATSURL:      GetEnv("NATS_URL", ""),
		AuditSubject: GetEnv("AUDIT_SUBJECT", "evt.fhir.audit.v1"),

		HTTPReadTimeout:  GetEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		HTTPWriteTimeout: GetEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		HTTPIdleTimeout:  GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
	}

	// Azure AD style token endpoint when only the tenant is configured.
	if cfg.TokenURL == "" && cfg.TenantID != "" {
		cfg.TokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID)
	}

	return cfg
}

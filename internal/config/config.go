package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	LLM        LLMConfig
	SharePoint SharePointConfig
	OCR        OCRConfig
	Webhook    WebhookConfig
	Pipeline   PipelineConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string // empty uses the embedded migrations
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	DefaultProvider  string
	FallbackProvider string
	FallbackModel    string // model sent to the fallback provider; empty uses its first listed model
	ClassifyModel    string
	ExtractModel     string
	MaxRetries       int
	ContextLimit     int // model context window in tokens
	ResponseTokens   int // tokens reserved for the extraction answer
}

type SharePointConfig struct {
	TenantID      string
	ClientID      string
	ClientSecret  string
	InputsDriveID string
	GraphBaseURL  string
	TokenURL      string // overrides the tenant token endpoint
	StatusField   string // list column that mirrors processing status
}

type OCRConfig struct {
	BaseURL               string
	SourceApp             string
	GenerateSearchablePDF bool
	PollTimeout           time.Duration
	PollInterval          time.Duration
}

type WebhookConfig struct {
	ClientState string // empty disables the check
}

type PipelineConfig struct {
	RescanConcurrency int
	RescanInterval    time.Duration
	SchemasDir        string // optional directory of extra/overriding schema files
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	contextLimit, err := getEnvInt("LLM_CONTEXT_LIMIT", 16385)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_CONTEXT_LIMIT: %w", err)
	}

	responseTokens, err := getEnvInt("LLM_RESPONSE_TOKENS", 3000)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_RESPONSE_TOKENS: %w", err)
	}

	searchable, err := getEnvBool("OCR_GENERATE_SEARCHABLE_PDF", true)
	if err != nil {
		return nil, fmt.Errorf("invalid OCR_GENERATE_SEARCHABLE_PDF: %w", err)
	}

	pollTimeout, err := getEnvDuration("OCR_POLL_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid OCR_POLL_TIMEOUT: %w", err)
	}

	pollInterval, err := getEnvDuration("OCR_POLL_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid OCR_POLL_INTERVAL: %w", err)
	}

	rescanConcurrency, err := getEnvInt("RESCAN_CONCURRENCY", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid RESCAN_CONCURRENCY: %w", err)
	}

	rescanInterval, err := getEnvDuration("RESCAN_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid RESCAN_INTERVAL: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			FallbackModel:    getEnv("LLM_FALLBACK_MODEL", ""),
			ClassifyModel:    getEnv("LLM_CLASSIFY_MODEL", "gpt-3.5-turbo"),
			ExtractModel:     getEnv("LLM_EXTRACT_MODEL", "gpt-3.5-turbo"),
			MaxRetries:       maxRetries,
			ContextLimit:     contextLimit,
			ResponseTokens:   responseTokens,
		},
		SharePoint: SharePointConfig{
			TenantID:      getEnv("SHAREPOINT_TENANT_ID", ""),
			ClientID:      getEnv("SHAREPOINT_CLIENT_ID", ""),
			ClientSecret:  getEnv("SHAREPOINT_CLIENT_SECRET", ""),
			InputsDriveID: getEnv("SHAREPOINT_INPUTS_DRIVE_ID", ""),
			GraphBaseURL:  getEnv("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
			TokenURL:      getEnv("GRAPH_TOKEN_URL", ""),
			StatusField:   getEnv("SHAREPOINT_STATUS_FIELD", "Estado"),
		},
		OCR: OCRConfig{
			BaseURL:               getEnv("OCR_SERVICE_BASE_URL", "http://localhost:4103"),
			SourceApp:             getEnv("OCR_SOURCE_APP", "extraction-service"),
			GenerateSearchablePDF: searchable,
			PollTimeout:           pollTimeout,
			PollInterval:          pollInterval,
		},
		Webhook: WebhookConfig{
			ClientState: getEnv("WEBHOOK_CLIENT_STATE", ""),
		},
		Pipeline: PipelineConfig{
			RescanConcurrency: rescanConcurrency,
			RescanInterval:    rescanInterval,
			SchemasDir:        getEnv("SCHEMAS_DIR", ""),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.LLM.OpenAIKey == "" && c.LLM.AnthropicKey == "" {
		missing = append(missing, "OPENAI_API_KEY or ANTHROPIC_API_KEY")
	}
	if c.SharePoint.TenantID == "" && c.SharePoint.TokenURL == "" {
		missing = append(missing, "SHAREPOINT_TENANT_ID")
	}
	if c.SharePoint.ClientID == "" {
		missing = append(missing, "SHAREPOINT_CLIENT_ID")
	}
	if c.SharePoint.ClientSecret == "" {
		missing = append(missing, "SHAREPOINT_CLIENT_SECRET")
	}
	if c.SharePoint.InputsDriveID == "" {
		missing = append(missing, "SHAREPOINT_INPUTS_DRIVE_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.Pipeline.RescanConcurrency < 1 {
		return fmt.Errorf("RESCAN_CONCURRENCY must be >= 1")
	}
	if c.LLM.ResponseTokens >= c.LLM.ContextLimit {
		return fmt.Errorf("LLM_RESPONSE_TOKENS must be smaller than LLM_CONTEXT_LIMIT")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

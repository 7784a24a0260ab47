package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the ThreatLens server.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Scorer   ScorerConfig
	AI       AIConfig
	Archive  ArchiveConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	MaxUploadBytes     int64
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

type StoreConfig struct {
	Backend string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	Required    bool
	AdminAPIKey string
}

// ScorerConfig selects the binary scoring backend.
type ScorerConfig struct {
	Backend         string
	VoiceCommand    []string
	DeepfakeCommand []string
	Timeout         time.Duration
	ScratchDir      string
	FallbackOnError bool
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	CacheTTL         time.Duration
	Ollama           OllamaConfig
	VLLM             VLLMConfig
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ArchiveConfig configures optional upload archiving to S3-compatible storage.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Enabled reports whether an archive endpoint was configured.
func (c ArchiveConfig) Enabled() bool { return c.Endpoint != "" }

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	ScorerSimulated = "simulated"
	ScorerExec      = "exec"

	minAdminKeyLen = 16
)

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("THREATLENS_PORT", 8080),
			Env:                envString("THREATLENS_ENV", "development"),
			MaxUploadBytes:     envInt64("MAX_UPLOAD_BYTES", 50*1024*1024),
			RateLimitPerMin:    envInt("RATE_LIMIT_PER_MIN", 60),
			CORSAllowedOrigins: envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Store: StoreConfig{
			Backend: envString("STORE_BACKEND", StoreMemory),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			Required:    envBool("AUTH_REQUIRED", false),
			AdminAPIKey: os.Getenv("ADMIN_API_KEY"),
		},
		Scorer: ScorerConfig{
			Backend:         envString("SCORER_BACKEND", ScorerSimulated),
			VoiceCommand:    strings.Fields(os.Getenv("ANALYZER_VOICE_CMD")),
			DeepfakeCommand: strings.Fields(os.Getenv("ANALYZER_DEEPFAKE_CMD")),
			Timeout:         envDuration("ANALYZER_TIMEOUT", 60*time.Second),
			ScratchDir:      envString("SCRATCH_DIR", os.TempDir()),
			FallbackOnError: envBool("FALLBACK_ON_ERROR", true),
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			CacheTTL:         envDuration("PHISHING_CACHE_TTL", time.Hour),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				Model:   envString("VLLM_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o"),
				BaseURL: os.Getenv("OPENAI_BASE_URL"),
			},
			Anthropic: AnthropicConfig{
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				Model:   envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
				BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			},
		},
		Archive: ArchiveConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    envString("MINIO_BUCKET", "threatlens-uploads"),
			Region:    envString("MINIO_REGION", "us-east-1"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.Server.MaxUploadBytes)
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is postgres")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, postgres; got %q", c.Store.Backend)
	}

	if c.Auth.Required && c.Auth.AdminAPIKey == "" && c.Store.Backend == StoreMemory {
		return fmt.Errorf("ADMIN_API_KEY is required when AUTH_REQUIRED is set with the memory store")
	}
	if c.Auth.AdminAPIKey != "" && len(c.Auth.AdminAPIKey) < minAdminKeyLen {
		return fmt.Errorf("ADMIN_API_KEY must be at least %d characters", minAdminKeyLen)
	}

	switch c.Scorer.Backend {
	case ScorerSimulated:
	case ScorerExec:
		if len(c.Scorer.VoiceCommand) == 0 {
			return fmt.Errorf("ANALYZER_VOICE_CMD is required when SCORER_BACKEND is exec")
		}
		if len(c.Scorer.DeepfakeCommand) == 0 {
			return fmt.Errorf("ANALYZER_DEEPFAKE_CMD is required when SCORER_BACKEND is exec")
		}
		if c.Scorer.Timeout <= 0 {
			return fmt.Errorf("ANALYZER_TIMEOUT must be positive")
		}
	default:
		return fmt.Errorf("SCORER_BACKEND must be one of simulated, exec; got %q", c.Scorer.Backend)
	}

	// An empty provider selects the local keyword heuristic.
	if c.AI.Provider != "" {
		if !validProviders[c.AI.Provider] {
			return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, anthropic; got %q", c.AI.Provider)
		}
		if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
		}
		if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
		}
		if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
			return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
		}
	}

	if c.Archive.Enabled() && (c.Archive.AccessKey == "" || c.Archive.SecretKey == "") {
		return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"textadapt/internal/util"
)

// ConfigPath is the default config location, overridable with ADAPT_CONFIG.
var ConfigPath = envOr("ADAPT_CONFIG", "config.yaml")

const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	DispatchQueue  = "queue"
	DispatchInline = "inline"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai-compat"
	ProviderOllama = "ollama"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL   string `yaml:"databaseURL"`
	JobStore      string `yaml:"jobStore"`
	ProfileStore  string `yaml:"profileStore"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	JobTTLHours   int    `yaml:"jobTTLHours"`

	DispatchMode           string `yaml:"dispatchMode"`
	QueueStream            string `yaml:"queueStream"`
	QueueGroup             string `yaml:"queueGroup"`
	QueueConcurrency       int    `yaml:"queueConcurrency"`
	QueueMaxRetries        int    `yaml:"queueMaxRetries"`
	QueueRetryDelaySeconds int    `yaml:"queueRetryDelaySeconds"`

	GenerationProvider       string `yaml:"generationProvider"`
	GenerationBaseURL        string `yaml:"generationBaseURL"`
	GenerationAPIKey         string `yaml:"generationAPIKey"`
	GenerationModel          string `yaml:"generationModel"`
	GenerationTimeoutSeconds int    `yaml:"generationTimeoutSeconds"`

	AuthJWKSURL string `yaml:"authJwksURL"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`

	TrustedProxyCIDRs        []string `yaml:"trustedProxyCidrs"`
	SubmitRateLimitPerMinute int      `yaml:"submitRateLimitPerMinute"`
	MaxParagraphs            int      `yaml:"maxParagraphs"`
	MaxParagraphRunes        int      `yaml:"maxParagraphRunes"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString(&cfg.Port, "ADAPT_PORT")
	setString(&cfg.LogLevel, "ADAPT_LOG_LEVEL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.JobStore, "ADAPT_JOB_STORE")
	setString(&cfg.ProfileStore, "ADAPT_PROFILE_STORE")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.JobTTLHours, "ADAPT_JOB_TTL_HOURS")
	setString(&cfg.DispatchMode, "ADAPT_DISPATCH_MODE")
	setInt(&cfg.QueueConcurrency, "ADAPT_QUEUE_CONCURRENCY")
	setInt(&cfg.QueueMaxRetries, "ADAPT_QUEUE_MAX_RETRIES")
	setString(&cfg.GenerationProvider, "GENERATION_PROVIDER")
	setString(&cfg.GenerationBaseURL, "GENERATION_BASE_URL")
	setString(&cfg.GenerationAPIKey, "GENERATION_API_KEY")
	setString(&cfg.GenerationModel, "GENERATION_MODEL")
	setInt(&cfg.GenerationTimeoutSeconds, "GENERATION_TIMEOUT_SECONDS")
	setString(&cfg.AuthJWKSURL, "ADAPT_AUTH_JWKS_URL")
	setString(&cfg.JWTIssuer, "ADAPT_JWT_ISSUER")
	setString(&cfg.JWTAudience, "ADAPT_JWT_AUDIENCE")
	setInt(&cfg.SubmitRateLimitPerMinute, "ADAPT_SUBMIT_RATE_LIMIT_PER_MINUTE")
	if v := os.Getenv("ADAPT_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.JobStore == "" {
		cfg.JobStore = StoreRedis
	}
	if cfg.ProfileStore == "" {
		cfg.ProfileStore = StorePostgres
	}
	if cfg.DispatchMode == "" {
		cfg.DispatchMode = DispatchQueue
	}
	if cfg.QueueStream == "" {
		cfg.QueueStream = "textadapt:analysis"
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = "analysis-workers"
	}
	if cfg.GenerationProvider == "" {
		cfg.GenerationProvider = ProviderGemini
	}
	cfg.JobStore = strings.ToLower(strings.TrimSpace(cfg.JobStore))
	cfg.ProfileStore = strings.ToLower(strings.TrimSpace(cfg.ProfileStore))
	cfg.DispatchMode = strings.ToLower(strings.TrimSpace(cfg.DispatchMode))
	cfg.GenerationProvider = strings.ToLower(strings.TrimSpace(cfg.GenerationProvider))
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or ADAPT_PORT)")
	}
	switch cfg.JobStore {
	case StoreRedis, StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("config: jobStore must be redis, postgres or memory, got %q", cfg.JobStore)
	}
	switch cfg.ProfileStore {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("config: profileStore must be postgres or memory, got %q", cfg.ProfileStore)
	}
	if (cfg.JobStore == StorePostgres || cfg.ProfileStore == StorePostgres) && cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required for postgres stores (set in config.yaml or DATABASE_URL)")
	}
	switch cfg.DispatchMode {
	case DispatchQueue, DispatchInline:
	default:
		return fmt.Errorf("config: dispatchMode must be queue or inline, got %q", cfg.DispatchMode)
	}
	if cfg.RedisAddr == "" {
		if cfg.JobStore == StoreRedis {
			return errors.New("config: redisAddr is required for the redis job store (set in config.yaml or REDIS_ADDR)")
		}
		if cfg.DispatchMode == DispatchQueue {
			return errors.New("config: redisAddr is required for queue dispatch (set in config.yaml or REDIS_ADDR)")
		}
		if cfg.SubmitRateLimitPerMinute > 0 {
			return errors.New("config: redisAddr is required when submitRateLimitPerMinute is set")
		}
	}
	if cfg.JobStore == StoreMemory && cfg.DispatchMode == DispatchQueue {
		return errors.New("config: queue dispatch needs a shared job store; use jobStore redis or postgres")
	}
	switch cfg.GenerationProvider {
	case ProviderGemini:
		if cfg.GenerationAPIKey == "" {
			return errors.New("config: generationAPIKey is required for gemini (set in config.yaml or GENERATION_API_KEY)")
		}
	case ProviderOpenAI:
		if cfg.GenerationBaseURL == "" {
			return errors.New("config: generationBaseURL is required for openai-compat (set in config.yaml or GENERATION_BASE_URL)")
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("config: unknown generationProvider %q", cfg.GenerationProvider)
	}
	if cfg.GenerationModel == "" {
		return errors.New("config: generationModel is required (set in config.yaml or GENERATION_MODEL)")
	}
	if cfg.AuthJWKSURL == "" {
		return errors.New("config: authJwksURL is required (set in config.yaml or ADAPT_AUTH_JWKS_URL)")
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs); err != nil {
		return fmt.Errorf("config: invalid trustedProxyCidrs: %w", err)
	}
	if cfg.SubmitRateLimitPerMinute < 0 || cfg.MaxParagraphs < 0 || cfg.MaxParagraphRunes < 0 {
		return errors.New("config: submitRateLimitPerMinute, maxParagraphs and maxParagraphRunes must not be negative")
	}
	if cfg.MinioEndpoint != "" {
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioAccessKey, minioSecretKey and minioBucket are required when minioEndpoint is set")
		}
	}
	return nil
}

// ArchiveEnabled reports whether finalized reports are written to object storage.
func (c FileConfig) ArchiveEnabled() bool {
	return c.MinioEndpoint != ""
}

// JobTTL returns the job retention period, zero meaning the store default.
func (c FileConfig) JobTTL() time.Duration {
	if c.JobTTLHours <= 0 {
		return 0
	}
	return time.Duration(c.JobTTLHours) * time.Hour
}

// GenerationTimeout returns the oracle request timeout, zero meaning the client default.
func (c FileConfig) GenerationTimeout() time.Duration {
	if c.GenerationTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

// QueueRetryDelay returns the delay between task retries.
func (c FileConfig) QueueRetryDelay() time.Duration {
	if c.QueueRetryDelaySeconds <= 0 {
		return 0
	}
	return time.Duration(c.QueueRetryDelaySeconds) * time.Second
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override (WIA_OLLAMA_MODEL, ...)
const EnvPrefix = "WIA"

// Config represents the complete application configuration
type Config struct {
	Ollama        OllamaConfig        `yaml:"ollama"`
	Weather       WeatherConfig       `yaml:"weather"`
	Workflow      WorkflowConfig      `yaml:"workflow"`
	Knowledge     KnowledgeConfig     `yaml:"knowledge"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// OllamaConfig contains Ollama-specific configuration
type OllamaConfig struct {
	BaseURL        string  `yaml:"base_url" validate:"required,url"`
	Model          string  `yaml:"model" validate:"required"`
	EmbeddingModel string  `yaml:"embedding_model"`
	Temperature    float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens      int     `yaml:"max_tokens" validate:"gte=0"`
	TopP           float64 `yaml:"top_p,omitempty"`
	TopK           int     `yaml:"top_k,omitempty"`
	Timeout        string  `yaml:"timeout"`
}

// WeatherConfig contains weather provider configuration
type WeatherConfig struct {
	Provider        string `yaml:"provider" validate:"oneof=openweather"`
	BaseURL         string `yaml:"base_url" validate:"required,url"`
	APIKey          string `yaml:"api_key,omitempty"`
	Timeout         string `yaml:"timeout"`
	GeocodeCacheTTL string `yaml:"geocode_cache_ttl"`
}

// WorkflowConfig contains pipeline execution configuration
type WorkflowConfig struct {
	BatchConcurrency int    `yaml:"batch_concurrency" validate:"gte=1"`
	MaxBatchSize     int    `yaml:"max_batch_size" validate:"gte=1"`
	RunTimeout       string `yaml:"run_timeout"`
}

// KnowledgeConfig contains knowledge store configuration
type KnowledgeConfig struct {
	Path            string `yaml:"path"` // empty or ":memory:" keeps the corpus in memory
	Embedder        string `yaml:"embedder" validate:"oneof=hash ollama"`
	VectorDimension int    `yaml:"vector_dimension" validate:"gte=8"`
	CollectionName  string `yaml:"collection_name" validate:"required"`
}

// APIConfig contains API server configuration
type APIConfig struct {
	Enabled      bool            `yaml:"enabled"`
	Port         int             `yaml:"port" validate:"gte=1,lte=65535"`
	Host         string          `yaml:"host"`
	ReadTimeout  string          `yaml:"read_timeout"`
	WriteTimeout string          `yaml:"write_timeout"`
	CORS         CORSConfig      `yaml:"cors"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// CORSConfig contains CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" validate:"gte=0"`
	BurstSize         int  `yaml:"burst_size" validate:"gte=0"`
}

// ObservabilityConfig contains observability configuration
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`
	Insecure     bool    `yaml:"insecure"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// envOverrides lists every setting that can be supplied through the environment.
// Keys are read as WIA_<NAME>, falling back to the bare <NAME>.
type envOverrides struct {
	OllamaBaseURL     string `envconfig:"OLLAMA_BASE_URL"`
	OllamaModel       string `envconfig:"OLLAMA_MODEL"`
	OpenWeatherAPIKey string `envconfig:"OPENWEATHER_API_KEY"`
	WeatherBaseURL    string `envconfig:"WEATHER_BASE_URL"`
	BatchConcurrency  int    `envconfig:"BATCH_CONCURRENCY"`
	KnowledgePath     string `envconfig:"KNOWLEDGE_PATH"`
	KnowledgeEmbedder string `envconfig:"KNOWLEDGE_EMBEDDER"`
	APIPort           int    `envconfig:"API_PORT"`
	APIHost           string `envconfig:"API_HOST"`
	OTLPEndpoint      string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel          string `envconfig:"LOG_LEVEL"`
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()

	if err := config.overrideFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadOrDefault loads configuration from a file or returns default config.
// Environment overrides are applied to the defaults as well.
func LoadOrDefault(path string) *Config {
	config, err := Load(path)
	if err != nil {
		config = Default()
		_ = config.overrideFromEnv()
	}
	return config
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Ollama: OllamaConfig{
			BaseURL:        "http://localhost:11434",
			Model:          "llama3.2",
			EmbeddingModel: "nomic-embed-text",
			Temperature:    0.7,
			MaxTokens:      2048,
			Timeout:        "2m",
		},
		Weather: WeatherConfig{
			Provider:        "openweather",
			BaseURL:         "https://api.openweathermap.org",
			Timeout:         "15s",
			GeocodeCacheTTL: "24h",
		},
		Workflow: WorkflowConfig{
			BatchConcurrency: 5,
			MaxBatchSize:     20,
			RunTimeout:       "5m",
		},
		Knowledge: KnowledgeConfig{
			Path:            "./data/knowledge.db",
			Embedder:        "hash",
			VectorDimension: 384,
			CollectionName:  "weather_knowledge",
		},
		API: APIConfig{
			Enabled:      false,
			Port:         8000,
			Host:         "0.0.0.0",
			ReadTimeout:  "30s",
			WriteTimeout: "5m",
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"*"},
				MaxAge:         3600,
			},
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				BurstSize:         10,
			},
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:      false,
				Endpoint:     "localhost:4318",
				SamplingRate: 1.0,
				Insecure:     true,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			Logging: LoggingConfig{
				Level: "info",
			},
		},
	}
}

// applyDefaults applies default values to missing fields
func (c *Config) applyDefaults() {
	defaults := Default()

	// Apply Ollama defaults
	if c.Ollama.BaseURL == "" {
		c.Ollama.BaseURL = defaults.Ollama.BaseURL
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = defaults.Ollama.Model
	}
	if c.Ollama.EmbeddingModel == "" {
		c.Ollama.EmbeddingModel = defaults.Ollama.EmbeddingModel
	}
	if c.Ollama.Temperature == 0 {
		c.Ollama.Temperature = defaults.Ollama.Temperature
	}
	if c.Ollama.MaxTokens == 0 {
		c.Ollama.MaxTokens = defaults.Ollama.MaxTokens
	}
	if c.Ollama.Timeout == "" {
		c.Ollama.Timeout = defaults.Ollama.Timeout
	}

	// Apply Weather defaults
	if c.Weather.Provider == "" {
		c.Weather.Provider = defaults.Weather.Provider
	}
	if c.Weather.BaseURL == "" {
		c.Weather.BaseURL = defaults.Weather.BaseURL
	}
	if c.Weather.Timeout == "" {
		c.Weather.Timeout = defaults.Weather.Timeout
	}
	if c.Weather.GeocodeCacheTTL == "" {
		c.Weather.GeocodeCacheTTL = defaults.Weather.GeocodeCacheTTL
	}

	// Apply Workflow defaults
	if c.Workflow.BatchConcurrency == 0 {
		c.Workflow.BatchConcurrency = defaults.Workflow.BatchConcurrency
	}
	if c.Workflow.MaxBatchSize == 0 {
		c.Workflow.MaxBatchSize = defaults.Workflow.MaxBatchSize
	}
	if c.Workflow.RunTimeout == "" {
		c.Workflow.RunTimeout = defaults.Workflow.RunTimeout
	}

	// Apply Knowledge defaults
	if c.Knowledge.Embedder == "" {
		c.Knowledge.Embedder = defaults.Knowledge.Embedder
	}
	if c.Knowledge.VectorDimension == 0 {
		c.Knowledge.VectorDimension = defaults.Knowledge.VectorDimension
	}
	if c.Knowledge.CollectionName == "" {
		c.Knowledge.CollectionName = defaults.Knowledge.CollectionName
	}

	// Apply API defaults
	if c.API.Port == 0 {
		c.API.Port = defaults.API.Port
	}
	if c.API.Host == "" {
		c.API.Host = defaults.API.Host
	}
	if c.API.ReadTimeout == "" {
		c.API.ReadTimeout = defaults.API.ReadTimeout
	}
	if c.API.WriteTimeout == "" {
		c.API.WriteTimeout = defaults.API.WriteTimeout
	}

	// Apply Observability defaults
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = defaults.Observability.Metrics.Path
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = defaults.Observability.Logging.Level
	}
}

// overrideFromEnv loads .env when present and applies WIA_* environment overrides
func (c *Config) overrideFromEnv() error {
	// A missing .env file is the normal case outside local development
	_ = godotenv.Load()

	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return err
	}

	setString(&c.Ollama.BaseURL, env.OllamaBaseURL)
	setString(&c.Ollama.Model, env.OllamaModel)
	setString(&c.Weather.APIKey, env.OpenWeatherAPIKey)
	setString(&c.Weather.BaseURL, env.WeatherBaseURL)
	setString(&c.Knowledge.Path, env.KnowledgePath)
	setString(&c.Knowledge.Embedder, env.KnowledgeEmbedder)
	setString(&c.API.Host, env.APIHost)
	setString(&c.Observability.Tracing.Endpoint, env.OTLPEndpoint)
	setString(&c.Observability.Logging.Level, strings.ToLower(env.LogLevel))

	if env.BatchConcurrency > 0 {
		c.Workflow.BatchConcurrency = env.BatchConcurrency
	}
	if env.APIPort > 0 {
		c.API.Port = env.APIPort
	}

	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	// Validate timeout strings
	timeouts := map[string]string{
		"ollama timeout":       c.Ollama.Timeout,
		"weather timeout":      c.Weather.Timeout,
		"geocode cache ttl":    c.Weather.GeocodeCacheTTL,
		"workflow run_timeout": c.Workflow.RunTimeout,
		"api read_timeout":     c.API.ReadTimeout,
		"api write_timeout":    c.API.WriteTimeout,
	}
	for name, value := range timeouts {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return nil
}

// Validate runs struct and duration validation on a fully populated config
func (c *Config) Validate() error {
	return c.validate()
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDuration parses a duration string from config
func (c *Config) GetDuration(value string) (time.Duration, error) {
	return time.ParseDuration(value)
}

// DurationOr parses value, returning fallback when it is empty or malformed
func (c *Config) DurationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	env := os.Getenv("ENVIRONMENT")
	return strings.ToLower(env) == "production" || strings.ToLower(env) == "prod"
}

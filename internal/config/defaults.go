package config

// TextProviderConfig configures the streaming story model.
type TextProviderConfig struct {
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	Model     string `mapstructure:"model" yaml:"model"`
	RateLimit int    `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// ImageProviderConfig configures the illustration model.
type ImageProviderConfig struct {
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	Model     string `mapstructure:"model" yaml:"model"`
	RateLimit int    `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// VisionProviderConfig configures the quality evaluator.
type VisionProviderConfig struct {
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	Model     string `mapstructure:"model" yaml:"model"`
	RateLimit int    `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// PipelineConfig controls generation behavior.
type PipelineConfig struct {
	ImageWorkers     int `mapstructure:"image_workers" yaml:"image_workers"`
	BatchSize        int `mapstructure:"batch_size" yaml:"batch_size"`
	MaxAttempts      int `mapstructure:"max_attempts" yaml:"max_attempts"`
	QualityThreshold int `mapstructure:"quality_threshold" yaml:"quality_threshold"`
}

// StorageConfig selects the persistence backends. Empty connection
// strings fall back to in-memory stores.
type StorageConfig struct {
	PostgresDSN   string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	CacheTTLHours int    `mapstructure:"cache_ttl_hours" yaml:"cache_ttl_hours"`
}

// Config is the full application configuration.
type Config struct {
	Text     TextProviderConfig   `mapstructure:"text" yaml:"text"`
	Image    ImageProviderConfig  `mapstructure:"image" yaml:"image"`
	Vision   VisionProviderConfig `mapstructure:"vision" yaml:"vision"`
	Pipeline PipelineConfig       `mapstructure:"pipeline" yaml:"pipeline"`
	Storage  StorageConfig        `mapstructure:"storage" yaml:"storage"`

	// WebhookURL, when set, receives job events.
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Text: TextProviderConfig{
			APIKey:    "${OPENAI_API_KEY}",
			Model:     "gpt-4o",
			RateLimit: 60,
		},
		Image: ImageProviderConfig{
			APIKey:    "${GEMINI_API_KEY}",
			Model:     "gemini-2.0-flash-exp",
			RateLimit: 30,
		},
		Vision: VisionProviderConfig{
			APIKey:    "${OPENAI_API_KEY}",
			Model:     "gpt-4o",
			RateLimit: 60,
		},
		Pipeline: PipelineConfig{
			ImageWorkers:     5,
			BatchSize:        4,
			MaxAttempts:      3,
			QualityThreshold: 50,
		},
		Storage: StorageConfig{
			CacheTTLHours: 24,
		},
		LogLevel: "info",
	}
}

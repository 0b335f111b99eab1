package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	AI      AIConfig      `yaml:"ai"`
	Speech  SpeechConfig  `yaml:"speech"`
	Graph   GraphConfig   `yaml:"graph"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type StorageConfig struct {
	MySQL MySQLConfig `yaml:"mysql"`
	Redis RedisConfig `yaml:"redis"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type AIConfig struct {
	// Provider selects the text backend: "gemini" or "openai".
	// Image, speech and video always run on gemini when configured.
	Provider string       `yaml:"provider"`
	Director bool         `yaml:"director"` // multi-agent pipeline on/off
	Gemini   GeminiConfig `yaml:"gemini"`
	OpenAI   OpenAIConfig `yaml:"openai"`
	Visual   VisualConfig `yaml:"visual"`
}

type GeminiConfig struct {
	APIKey         string `yaml:"api_key"`
	TextModel      string `yaml:"text_model"`
	ImageModel     string `yaml:"image_model"`
	SpeechModel    string `yaml:"speech_model"`
	VideoModel     string `yaml:"video_model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

type OpenAIConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type VisualConfig struct {
	MaxRetries   int           `yaml:"max_retries"`   // quality-gate retry budget
	MinScore     int           `yaml:"min_score"`     // verification pass mark
	PollInterval time.Duration `yaml:"poll_interval"` // video operation polling
	CacheDir     string        `yaml:"cache_dir"`     // scene base image directory
	CacheSize    int           `yaml:"cache_size"`    // max cached scenes
}

type SpeechConfig struct {
	Enabled      bool          `yaml:"enabled"`
	DefaultVoice string        `yaml:"default_voice"`
	Debounce     time.Duration `yaml:"debounce"`
}

type GraphConfig struct {
	PersistKey string        `yaml:"persist_key"`
	Debounce   time.Duration `yaml:"debounce"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies defaults and
// environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		cfg.AI.Gemini.APIKey = apiKey
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.AI.OpenAI.APIKey = apiKey
	}

	return &cfg, nil
}

// Default returns a usable configuration without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.AI.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	cfg.AI.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 120 * time.Second
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "gemini"
	}
	if c.AI.Gemini.TextModel == "" {
		c.AI.Gemini.TextModel = "gemini-2.5-pro"
	}
	if c.AI.Gemini.ImageModel == "" {
		c.AI.Gemini.ImageModel = "gemini-2.5-flash-image"
	}
	if c.AI.Gemini.SpeechModel == "" {
		c.AI.Gemini.SpeechModel = "gemini-2.5-flash-preview-tts"
	}
	if c.AI.Gemini.VideoModel == "" {
		c.AI.Gemini.VideoModel = "veo-3.1-fast-generate-preview"
	}
	if c.AI.Gemini.EmbeddingModel == "" {
		c.AI.Gemini.EmbeddingModel = "gemini-embedding-001"
	}
	if c.AI.OpenAI.Model == "" {
		c.AI.OpenAI.Model = "gpt-4o"
	}
	if c.AI.OpenAI.MaxTokens == 0 {
		c.AI.OpenAI.MaxTokens = 2048
	}
	if c.AI.OpenAI.Temperature == 0 {
		c.AI.OpenAI.Temperature = 0.7
	}
	if c.AI.Visual.MaxRetries == 0 {
		c.AI.Visual.MaxRetries = 2
	}
	if c.AI.Visual.MinScore == 0 {
		c.AI.Visual.MinScore = 70
	}
	if c.AI.Visual.PollInterval == 0 {
		c.AI.Visual.PollInterval = 5 * time.Second
	}
	if c.AI.Visual.CacheDir == "" {
		c.AI.Visual.CacheDir = "./cache/scenes"
	}
	if c.AI.Visual.CacheSize == 0 {
		c.AI.Visual.CacheSize = 64
	}
	if c.Speech.DefaultVoice == "" {
		c.Speech.DefaultVoice = "Puck"
	}
	if c.Speech.Debounce == 0 {
		c.Speech.Debounce = 500 * time.Millisecond
	}
	if c.Graph.PersistKey == "" {
		c.Graph.PersistKey = "nightloom_graph"
	}
	if c.Graph.Debounce == 0 {
		c.Graph.Debounce = 2 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

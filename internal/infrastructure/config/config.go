// Package config loads runtime configuration from the environment and an
// optional config file.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting.
type Config struct {
	// OpenAIAPIKey enables generation and remote embeddings. Empty means the
	// model client is permanently unavailable.
	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
	OpenAIModel   string `mapstructure:"openai_model"`

	EmbeddingModel string `mapstructure:"embedding_model"`

	// ChromaURL selects the ChromaDB backend; empty selects the in-memory
	// index.
	ChromaURL string `mapstructure:"chroma_url"`

	CacheThreshold float64 `mapstructure:"cache_threshold"`
	KnowledgeDir   string  `mapstructure:"knowledge_dir"`
	WatchKnowledge bool    `mapstructure:"watch_knowledge"`

	DBPath     string `mapstructure:"db_path"`
	ListenAddr string `mapstructure:"listen_addr"`
	LogLevel   string `mapstructure:"log_level"`
}

// Load reads configuration: defaults, then an optional config.yaml in the
// working directory, then environment variables (a .env file is honored when
// present). Environment keys are the upper-cased field keys, e.g.
// OPENAI_API_KEY, CACHE_THRESHOLD.
func Load() (*Config, error) {
	// Best effort; absence of .env is normal.
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("embedding_model", "text-embedding-3-small")
	v.SetDefault("cache_threshold", 0.90)
	v.SetDefault("knowledge_dir", "./knowledge")
	v.SetDefault("watch_knowledge", true)
	v.SetDefault("db_path", "./data/ustazai.db")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	// Bind explicitly so AutomaticEnv sees keys that are absent from the
	// config file.
	for _, key := range []string{
		"openai_api_key", "openai_base_url", "openai_model",
		"embedding_model", "chroma_url", "cache_threshold",
		"knowledge_dir", "watch_knowledge", "db_path", "listen_addr", "log_level",
	} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// This file defines the configuration structure for the application.
package config

import (
	// use Viper for loading the config.yml file.
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port     int `mapstructure:"port"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Data struct {
		Path  string `mapstructure:"path"`
		Watch bool   `mapstructure:"watch"`
	} `mapstructure:"data"`
	Pipeline struct {
		BatchSize              int `mapstructure:"batch_size"`
		MaxRetries             int `mapstructure:"max_retries"`
		MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures"`
	} `mapstructure:"pipeline"`
	Sessions struct {
		RetentionMinutes    int `mapstructure:"retention_minutes"`
		MaxTerminal         int `mapstructure:"max_terminal"`
		ReapIntervalMinutes int `mapstructure:"reap_interval_minutes"`
	} `mapstructure:"sessions"`
	Progress struct {
		HeartbeatSeconds int `mapstructure:"heartbeat_seconds"`
	} `mapstructure:"progress"`
	Scoring struct {
		BaseURL        string `mapstructure:"base_url"`
		APIKey         string `mapstructure:"api_key"`
		Model          string `mapstructure:"model"`
		EmbeddingModel string `mapstructure:"embedding_model"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"scoring"`
	Deduplication struct {
		SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	} `mapstructure:"deduplication"`
}

// Retention returns the terminal session retention window as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Sessions.RetentionMinutes) * time.Minute
}

// HeartbeatInterval returns the progress heartbeat interval as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Progress.HeartbeatSeconds) * time.Second
}

// ScoringTimeout returns the per-call scoring timeout as a duration.
func (c *Config) ScoringTimeout() time.Duration {
	return time.Duration(c.Scoring.TimeoutSeconds) * time.Second
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or "yaml"
	viper.AddConfigPath(".")      // looking for config in the current directory

	// --- Environment Variable Overrides ---
	// This tells Viper to look for environment variables with a "NEWSIGHT_" prefix.
	// e.g., NEWSIGHT_DATABASE_PATH will override the `database.path` key.
	viper.SetEnvPrefix("NEWSIGHT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("port", 8080)
	viper.SetDefault("database.path", "./newsight.db")
	viper.SetDefault("data.path", "./data")
	viper.SetDefault("data.watch", true)
	viper.SetDefault("pipeline.batch_size", 10)
	viper.SetDefault("pipeline.max_retries", 3)
	viper.SetDefault("pipeline.max_consecutive_failures", 5)
	viper.SetDefault("sessions.retention_minutes", 30)
	viper.SetDefault("sessions.max_terminal", 100)
	viper.SetDefault("sessions.reap_interval_minutes", 5)
	viper.SetDefault("progress.heartbeat_seconds", 15)
	viper.SetDefault("scoring.base_url", "https://api.openai.com")
	viper.SetDefault("scoring.api_key", "")
	viper.SetDefault("scoring.model", "gpt-4o-mini")
	viper.SetDefault("scoring.embedding_model", "text-embedding-3-small")
	viper.SetDefault("scoring.timeout_seconds", 30)
	viper.SetDefault("deduplication.similarity_threshold", 0.85)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error and use defaults
		} else {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Package config loads server configuration from a YAML file and
// FLUME_-prefixed environment variables.
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the configuration for the flumed server.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	Store struct {
		// Path is the SQLite database file. Empty keeps everything
		// in memory.
		Path string `mapstructure:"path"`
		// CredentialKey seals integration credentials at rest.
		CredentialKey string `mapstructure:"credential_key"`
	} `mapstructure:"store"`
	Engine struct {
		// Concurrency caps simultaneously running nodes per
		// execution. Zero means unlimited.
		Concurrency  int `mapstructure:"concurrency"`
		HistoryLimit int `mapstructure:"history_limit"`
	} `mapstructure:"engine"`
	OpenAI struct {
		APIKey string `mapstructure:"api_key"`
	} `mapstructure:"openai"`
}

// Load reads configuration from config.yaml (working directory or
// ./config) and the environment. FLUME_SERVER_ADDR overrides
// server.addr and so on. A missing config file is not an error.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("FLUME")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("engine.history_limit", 1000)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

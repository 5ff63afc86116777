package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.ParseCacheSize == 0 {
		cfg.ParseCacheSize = DefaultParseCacheSize
	}
	if cfg.Upstream.RequestTimeout == 0 {
		cfg.Upstream.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Window.MaxWait == 0 {
		cfg.Window.MaxWait = DefaultWindowMaxWait
	}
	if cfg.Window.MaxRequests == 0 {
		cfg.Window.MaxRequests = DefaultWindowMaxReqs
	}
	if cfg.Merge.WasteFactor == 0 {
		cfg.Merge.WasteFactor = DefaultWasteFactor
	}
	// Merge.Adjacency default is 0, meaning only touching ranges merge
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Upstream.BaseURL == "" && cfg.Upstream.WSURL == "" {
		return errors.New("at least one of upstream.baseUrl or upstream.wsUrl is required")
	}

	if cfg.Upstream.PreferWS && cfg.Upstream.WSURL == "" {
		return errors.New("upstream.preferWs requires upstream.wsUrl")
	}

	if cfg.Upstream.RequestTimeout < 0 {
		return fmt.Errorf("upstream.requestTimeout must be non-negative")
	}

	if cfg.Window.MaxWait < 0 {
		return fmt.Errorf("window.maxWait must be non-negative")
	}

	if cfg.Window.MaxRequests < 1 {
		return fmt.Errorf("window.maxRequests must be positive")
	}

	if cfg.Merge.WasteFactor < 1 {
		return fmt.Errorf("merge.wasteFactor must be at least 1")
	}

	if cfg.Merge.Adjacency < 0 {
		return fmt.Errorf("merge.adjacency must be non-negative")
	}

	if cfg.ParseCacheSize < 0 {
		return fmt.Errorf("parseCacheSize must be non-negative")
	}

	return nil
}

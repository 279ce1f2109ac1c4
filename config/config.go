// Package config loads the gateway configuration from YAML with
// environment-variable overrides. Zero-value fields get defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	Listen string `yaml:"listen"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`

	Sqlite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`

	OpenAI struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"openai"`

	Cache struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"cache"`

	State struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"state"`

	Optimizer struct {
		MaxNodes          int           `yaml:"max_nodes"`
		SimilarityEdgeMin float64       `yaml:"similarity_edge_min"`
		EmbedTimeout      time.Duration `yaml:"embed_timeout"`
		ProviderTimeout   time.Duration `yaml:"provider_timeout"`
		AuxTimeout        time.Duration `yaml:"aux_timeout"`
	} `yaml:"optimizer"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration defaults.
func Default() Config {
	var c Config
	c.Listen = ":8080"
	c.Cache.TTL = 24 * time.Hour
	c.State.TTL = 24 * time.Hour
	c.Optimizer.MaxNodes = 50
	c.Optimizer.SimilarityEdgeMin = 0.55
	c.Optimizer.EmbedTimeout = 15 * time.Second
	c.Optimizer.ProviderTimeout = 120 * time.Second
	c.Optimizer.AuxTimeout = 2 * time.Second
	c.LogLevel = "info"
	return c
}

// Load reads the YAML file at path (optional), applies environment
// overrides, and fills in defaults.
func Load(path string) (Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&c)
	fillDefaults(&c)
	return c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("SPECTYRA_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("SPECTYRA_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("SPECTYRA_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("SPECTYRA_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
	if v := os.Getenv("SPECTYRA_POSTGRES_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("SPECTYRA_SQLITE_PATH"); v != "" {
		c.Sqlite.Path = v
	}
	if v := os.Getenv("SPECTYRA_OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("SPECTYRA_OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv("SPECTYRA_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// fillDefaults restores defaults for fields zeroed by a partial YAML file.
func fillDefaults(c *Config) {
	d := Default()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = d.Cache.TTL
	}
	if c.State.TTL <= 0 {
		c.State.TTL = d.State.TTL
	}
	if c.Optimizer.MaxNodes <= 0 {
		c.Optimizer.MaxNodes = d.Optimizer.MaxNodes
	}
	if c.Optimizer.SimilarityEdgeMin <= 0 {
		c.Optimizer.SimilarityEdgeMin = d.Optimizer.SimilarityEdgeMin
	}
	if c.Optimizer.EmbedTimeout <= 0 {
		c.Optimizer.EmbedTimeout = d.Optimizer.EmbedTimeout
	}
	if c.Optimizer.ProviderTimeout <= 0 {
		c.Optimizer.ProviderTimeout = d.Optimizer.ProviderTimeout
	}
	if c.Optimizer.AuxTimeout <= 0 {
		c.Optimizer.AuxTimeout = d.Optimizer.AuxTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

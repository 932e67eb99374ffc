// Package config resolves monscrape settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "monscrape.yaml"

// Environment variables that fill settings left empty by the file.
const (
	EnvToken     = "MONSCRAPE_TOKEN"
	EnvCacheDir  = "MONSCRAPE_CACHE_DIR"
	EnvRedisAddr = "MONSCRAPE_REDIS_ADDR"
	EnvLogLevel  = "MONSCRAPE_LOG_LEVEL"
	EnvBaseURL   = "MONSCRAPE_BASE_URL"
)

// ErrMissingToken is returned by Validate when no API token was resolved.
var ErrMissingToken = errors.New("no API token: set auth.token in " + DefaultPath + " or " + EnvToken)

// Config is the resolved configuration.
type Config struct {
	Auth  AuthConfig  `yaml:"auth"`
	API   APIConfig   `yaml:"api"`
	Cache CacheConfig `yaml:"cache"`
	Log   LogConfig   `yaml:"log"`
}

// AuthConfig holds API credentials.
type AuthConfig struct {
	Token string `yaml:"token"`
}

// APIConfig holds remote endpoint settings.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig selects the page cache backend. Pages go to Redis when
// RedisAddr is set, to files under Dir otherwise.
type CacheConfig struct {
	Dir       string `yaml:"dir"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL: "https://api.surveymonkey.net",
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Dir: "cache",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load resolves the defaults, then the environment read through getenv, then
// the file at path, in increasing priority. A missing file is not an error.
// getenv is usually os.Getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}

	file := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	return merge(fromEnv(Default(), getenv), file), nil
}

// fromEnv overlays the set environment variables onto base.
func fromEnv(base Config, getenv func(string) string) Config {
	overrideFromEnv(&base.Auth.Token, getenv(EnvToken))
	overrideFromEnv(&base.Cache.Dir, getenv(EnvCacheDir))
	overrideFromEnv(&base.Cache.RedisAddr, getenv(EnvRedisAddr))
	overrideFromEnv(&base.Log.Level, getenv(EnvLogLevel))
	overrideFromEnv(&base.API.BaseURL, getenv(EnvBaseURL))
	return base
}

// Validate checks that the configuration can be used for API access.
func (c Config) Validate() error {
	if c.Auth.Token == "" {
		return ErrMissingToken
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout)
	}
	if c.Cache.RedisAddr == "" && c.Cache.Dir == "" {
		return errors.New("cache.dir or cache.redis_addr is required")
	}
	return nil
}

// merge overlays the non-zero settings of file onto base.
func merge(base, file Config) Config {
	if file.Auth.Token != "" {
		base.Auth.Token = file.Auth.Token
	}
	if file.API.BaseURL != "" {
		base.API.BaseURL = file.API.BaseURL
	}
	if file.API.Timeout != 0 {
		base.API.Timeout = file.API.Timeout
	}
	if file.Cache.Dir != "" {
		base.Cache.Dir = file.Cache.Dir
	}
	if file.Cache.RedisAddr != "" {
		base.Cache.RedisAddr = file.Cache.RedisAddr
	}
	if file.Cache.RedisDB != 0 {
		base.Cache.RedisDB = file.Cache.RedisDB
	}
	if file.Log.Level != "" {
		base.Log.Level = file.Log.Level
	}
	base.Log.Pretty = file.Log.Pretty
	return base
}

func overrideFromEnv(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

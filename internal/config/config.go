// Package config loads settings from an optional YAML file, STUDYDECK_
// environment variables and command-line flags, in increasing priority.
package config

import (
	"fmt"
	"strings"

	"github.com/conorfennell/studydeck/internal/ratelimit"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "STUDYDECK_"

type Config struct {
	DB        string           `koanf:"db" validate:"required"`
	Addr      string           `koanf:"addr" validate:"required"`
	ReposDir  string           `koanf:"repos-dir" validate:"required"`
	LogLevel  string           `koanf:"log-level" validate:"oneof=debug info warn error"`
	Review    Review           `koanf:"review"`
	RateLimit ratelimit.Config `koanf:"ratelimit"`
	CORS      CORS             `koanf:"cors"`
}

type Review struct {
	DefaultLimit int `koanf:"default-limit" validate:"gt=0"`
	MaxRetries   int `koanf:"max-retries" validate:"gte=0,lte=10"`
}

type CORS struct {
	AllowedOrigins []string `koanf:"allowed-origins" validate:"dive,required"`
}

// RegisterFlags adds the configuration flags and their defaults to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML config file")
	fs.String("db", "studydeck.db", "Path to the SQLite database file")
	fs.String("addr", ":8080", "Address for the HTTP server")
	fs.String("repos-dir", "repos", "Directory for git source checkouts")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.Int("review.default-limit", 20, "Cards per review session when no limit is given")
	fs.Int("review.max-retries", 3, "Retries for a conflicting or failed card write")
	fs.Int("ratelimit.per-minute", 120, "Mutating requests allowed per user per minute, 0 disables")
	fs.Int("ratelimit.burst", 20, "Burst size for the request rate limit")
	fs.StringSlice("cors.allowed-origins", []string{"*"}, "Origins allowed to call the API")
}

// Load reads configuration for an already parsed fs. Flag defaults only
// apply to keys the file and environment leave unset.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envValue maps STUDYDECK_REVIEW__MAX_RETRIES to review.max-retries and
// splits comma separated origin lists.
func envValue(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	key = strings.ReplaceAll(key, "_", "-")
	if key == "cors.allowed-origins" {
		return key, strings.Split(value, ",")
	}
	return key, value
}

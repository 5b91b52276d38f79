// Package config loads the server configuration once at startup.
//
// The result is a plain *Config value that main passes to every constructor
// that needs it. Nothing in the codebase reads the environment after Load
// returns, so tests can build a Config literal and never touch os.Setenv.
//
// LOAD ORDER:
//  1. an optional .env file in the working directory (godotenv)
//  2. the real process environment, which wins over .env
//  3. defaults for anything still unset
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Nutrition source selectors for NUTRITION_SOURCE.
const (
	NutritionSourceOpenFoodFacts = "openfoodfacts"
	NutritionSourceNone          = "none"
)

// Config holds every tunable of the server.
type Config struct {
	Env         string // "development", "production", ...
	Port        int
	DatabaseURL string // postgres://... or a SQLite path / sqlite:// URL

	JWTSecret      string
	AccessTokenTTL time.Duration

	NutritionSource      string
	OpenFoodFactsBaseURL string
	NutritionTimeout     time.Duration

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	LogLevel       slog.Level
	MetricsEnabled bool
}

// IsDevelopment reports whether the server runs with development defaults
// (human-readable logs, non-Secure cookies).
func (c *Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development"
}

// GitHubEnabled reports whether GitHub OAuth login should be mounted.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Load passes os.Getenv;
// tests pass a map lookup.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Env:                  get("ENV", "development"),
		DatabaseURL:          get("DATABASE_URL", "data/insho.db"),
		JWTSecret:            getenv("JWT_SECRET"),
		NutritionSource:      strings.ToLower(get("NUTRITION_SOURCE", NutritionSourceOpenFoodFacts)),
		OpenFoodFactsBaseURL: strings.TrimRight(get("OPENFOODFACTS_BASE_URL", "https://world.openfoodfacts.org"), "/"),
		GitHubClientID:       getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret:   getenv("GITHUB_CLIENT_SECRET"),
	}

	var err error
	if cfg.Port, err = strconv.Atoi(get("PORT", "8000")); err != nil || cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: invalid PORT %q", getenv("PORT"))
	}
	if cfg.AccessTokenTTL, err = parseDuration(get("ACCESS_TOKEN_TTL", "60m")); err != nil {
		return nil, fmt.Errorf("config: invalid ACCESS_TOKEN_TTL: %w", err)
	}
	if cfg.NutritionTimeout, err = parseDuration(get("NUTRITION_TIMEOUT", "7s")); err != nil {
		return nil, fmt.Errorf("config: invalid NUTRITION_TIMEOUT: %w", err)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("config: invalid LOG_LEVEL: %w", err)
	}
	if cfg.MetricsEnabled, err = strconv.ParseBool(get("METRICS_ENABLED", "true")); err != nil {
		return nil, fmt.Errorf("config: invalid METRICS_ENABLED: %w", err)
	}

	cfg.GitHubCallbackURL = get("GITHUB_CALLBACK_URL",
		fmt.Sprintf("http://localhost:%d/api/v1/auth/github/callback", cfg.Port))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("config: JWT_SECRET must be set and at least 16 characters")
	}
	switch c.NutritionSource {
	case NutritionSourceOpenFoodFacts, NutritionSourceNone:
	default:
		return fmt.Errorf("config: unknown NUTRITION_SOURCE %q", c.NutritionSource)
	}
	if c.NutritionSource == NutritionSourceOpenFoodFacts &&
		!strings.HasPrefix(c.OpenFoodFactsBaseURL, "http://") &&
		!strings.HasPrefix(c.OpenFoodFactsBaseURL, "https://") {
		return fmt.Errorf("config: OPENFOODFACTS_BASE_URL must be an http(s) URL, got %q", c.OpenFoodFactsBaseURL)
	}
	return nil
}

// parseDuration accepts Go durations ("90s", "1h") and bare integers,
// which are read as minutes for ACCESS_TOKEN_TTL-style settings.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("must be positive, got %d", n)
		}
		return time.Duration(n) * time.Minute, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

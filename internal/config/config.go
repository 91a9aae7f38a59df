package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port       string `mapstructure:"PORT"`
	Env        string `mapstructure:"ENV"`
	GatewayURL string `mapstructure:"GATEWAY_URL"`
	WSBaseURL  string `mapstructure:"WS_BASE_URL"`
	AuthToken  string `mapstructure:"AUTH_TOKEN"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8090")
	v.SetDefault("ENV", "development")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("GATEWAY_URL")
	v.BindEnv("WS_BASE_URL")
	v.BindEnv("AUTH_TOKEN")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("GATEWAY_URL is required")
	}
	if cfg.WSBaseURL == "" {
		return nil, fmt.Errorf("WS_BASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configured endpoints are usable before any
// connection is attempted.
func (c *Config) Validate() error {
	u, err := url.Parse(c.GatewayURL)
	if err != nil {
		return fmt.Errorf("GATEWAY_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("GATEWAY_URL scheme must be http or https, got %q", u.Scheme)
	}

	w, err := url.Parse(c.WSBaseURL)
	if err != nil {
		return fmt.Errorf("WS_BASE_URL is not a valid URL: %w", err)
	}
	if w.Scheme != "ws" && w.Scheme != "wss" {
		return fmt.Errorf("WS_BASE_URL scheme must be ws or wss, got %q", w.Scheme)
	}
	if strings.HasSuffix(c.WSBaseURL, "/") {
		return fmt.Errorf("WS_BASE_URL must not end with a slash")
	}

	return nil
}

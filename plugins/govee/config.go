package govee

import (
	"fmt"
	"strings"
	"time"

	"github.com/joshp123/humidistat/internal/config"
)

// Config defines runtime configuration for the Govee OpenAPI client.
type Config struct {
	BaseURL   string
	APIKey    string
	PerMinute int
	PerDay    int
	// Timeout bounds each request; zero means 10 seconds.
	Timeout time.Duration
}

func ConfigFrom(cfg *config.Config, apiKey string) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("govee config is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return Config{}, fmt.Errorf("govee api key is required")
	}

	baseURL := strings.TrimSpace(cfg.Service.APIBaseURL)
	if baseURL == "" {
		baseURL = config.DefaultAPIBaseURL
	}

	return Config{
		BaseURL:   baseURL,
		APIKey:    strings.TrimSpace(apiKey),
		PerMinute: cfg.RateLimit.PerMinute,
		PerDay:    cfg.RateLimit.PerDay,
	}, nil
}

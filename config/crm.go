package config

import (
	"os"
	"strings"
	"time"
)

// CrmConfig holds the outbound CRM integration settings. The CRM allows
// roughly 60 requests per minute, hence the ~1.1s default gap between calls.
type CrmConfig struct {
	BaseURL     string
	APIKey      string
	BearerToken string

	Enabled  bool
	Schedule string

	RequestInterval time.Duration
	MaxAttempts     int
	PageSize        int
}

// IsConfigured reports whether every required credential is present.
// Every trigger path must treat "not configured" as a no-op or clear error.
func (c CrmConfig) IsConfigured() bool {
	return c.BaseURL != "" && c.APIKey != "" && c.BearerToken != ""
}

func LoadCrmConfig() CrmConfig {
	cfg := CrmConfig{
		BaseURL:         strings.TrimRight(strings.TrimSpace(os.Getenv("CRM_API_URL")), "/"),
		APIKey:          strings.TrimSpace(os.Getenv("CRM_API_KEY")),
		BearerToken:     strings.TrimSpace(os.Getenv("CRM_BEARER_TOKEN")),
		Enabled:         !strings.EqualFold(strings.TrimSpace(os.Getenv("CRM_SYNC_ENABLED")), "false"),
		Schedule:        strings.TrimSpace(os.Getenv("CRM_SYNC_SCHEDULE")),
		RequestInterval: 1100 * time.Millisecond,
		MaxAttempts:     3,
		PageSize:        200,
	}

	if cfg.Schedule == "" {
		// Nightly, off-peak for the CRM.
		cfg.Schedule = "0 3 * * *"
	}
	if n := intFromEnv("CRM_RATE_LIMIT_PER_MIN", 0); n > 0 {
		cfg.RequestInterval = time.Minute / time.Duration(n)
	}
	if n := intFromEnv("CRM_MAX_ATTEMPTS", 0); n > 0 {
		cfg.MaxAttempts = n
	}
	if n := intFromEnv("CRM_PAGE_SIZE", 0); n > 0 {
		cfg.PageSize = n
	}
	return cfg
}

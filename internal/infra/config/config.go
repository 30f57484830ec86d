// Package config collects and exposes the configuration of the whole service.
// It:
//  1. reads environment variables from .env (via godotenv),
//  2. normalizes and validates the raw values,
//  3. keeps non-fatal findings as warnings for startup logging,
//  4. provides thread-safe access to the result through an R/W mutex.
//
// Business context: the env config carries the provider API keys (Google Maps,
// Anthropic, SendGrid, Twilio), the Temporal connection and task queue, the
// cron secret protecting the fleet sweep, workflow tuning knobs (cutoff hours,
// default delay threshold) and the usual operational handles (log level,
// database path, HTTP address).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding variable is absent or invalid.
const (
	defaultLogLevel         = "info"
	defaultHTTPAddr         = ":8080"
	defaultDatabasePath     = "data/freight.db"
	defaultTemporalAddress  = "localhost:7233"
	defaultTemporalNS       = "default"
	defaultTaskQueue        = "freight-delay-queue"
	defaultCutoffHours      = 1
	defaultThresholdMinutes = 30
	defaultSweepRPS         = 5
)

// EnvConfig describes the parameters coming from the environment (.env).
// Values are already validated and normalized by loadConfig; at runtime the
// call sites may assume the struct is consistent.
type EnvConfig struct {
	LogLevel string
	LogFile  string

	HTTPAddr     string `validate:"required"`
	DatabasePath string `validate:"required"`

	TemporalAddress   string `validate:"required,hostname_port"`
	TemporalNamespace string `validate:"required"`
	TaskQueue         string `validate:"required"`

	// CronSecret authenticates the fleet-sweep endpoint. Required in
	// production; when empty the endpoint rejects every request.
	CronSecret string

	CutoffHours             int     `validate:"min=0"`
	DefaultThresholdMinutes int     `validate:"gt=0"`
	SweepRPS                float64 `validate:"gt=0"`

	GoogleMapsAPIKey string
	AnthropicAPIKey  string
	SendGridAPIKey   string
	SendGridFrom     string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string

	// ForceMockAdapters makes the mock providers the only registered
	// adapters, regardless of which API keys are configured.
	ForceMockAdapters bool
}

var (
	mu       sync.RWMutex
	env      EnvConfig
	warnings []string
	loaded   bool
)

// Load reads the .env file (ignored if absent), parses the environment and
// stores the resulting EnvConfig globally. Returns an error only for fatally
// broken configuration; recoverable issues become Warnings().
func Load(envPath string) error {
	cfg, warns, err := loadConfig(envPath)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	env = cfg
	warnings = warns
	loaded = true
	return nil
}

func loadConfig(envPath string) (EnvConfig, []string, error) {
	// Missing .env is fine: real deployments inject the environment directly.
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return EnvConfig{}, nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	var warns []string

	cfg := EnvConfig{
		LogLevel: sanitizeLogLevel(os.Getenv("LOG_LEVEL"), defaultLogLevel, &warns),
		LogFile:  strings.TrimSpace(os.Getenv("LOG_FILE")),

		HTTPAddr:     stringDefault("HTTP_ADDR", defaultHTTPAddr),
		DatabasePath: stringDefault("DATABASE_PATH", defaultDatabasePath),

		TemporalAddress:   stringDefault("TEMPORAL_ADDRESS", defaultTemporalAddress),
		TemporalNamespace: stringDefault("TEMPORAL_NAMESPACE", defaultTemporalNS),
		TaskQueue:         stringDefault("TEMPORAL_TASK_QUEUE", defaultTaskQueue),

		CronSecret: strings.TrimSpace(os.Getenv("CRON_SECRET")),

		CutoffHours:             parseIntDefault("WORKFLOW_CUTOFF_HOURS", defaultCutoffHours, nonNegative, &warns),
		DefaultThresholdMinutes: parseIntDefault("WORKFLOW_DEFAULT_THRESHOLD_MINUTES", defaultThresholdMinutes, greaterThanZero, &warns),
		SweepRPS:                parseFloatDefault("SWEEP_RPS", defaultSweepRPS, &warns),

		GoogleMapsAPIKey: strings.TrimSpace(os.Getenv("GOOGLE_MAPS_API_KEY")),
		AnthropicAPIKey:  strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		SendGridAPIKey:   strings.TrimSpace(os.Getenv("SENDGRID_API_KEY")),
		SendGridFrom:     strings.TrimSpace(os.Getenv("SENDGRID_FROM_EMAIL")),
		TwilioAccountSID: strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID")),
		TwilioAuthToken:  strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
		TwilioFrom:       strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER")),

		ForceMockAdapters: parseBoolDefault("FORCE_NOTIFICATION_MOCK_ADAPTER", false, &warns),
	}

	if cfg.CronSecret == "" {
		appendWarningf(&warns, "CRON_SECRET is empty: fleet-sweep endpoint will reject all requests")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return EnvConfig{}, nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, warns, nil
}

// Env returns a copy of the loaded configuration. Panics when called before
// Load: wiring bugs of that kind must fail loudly at startup, not at runtime.
func Env() EnvConfig {
	mu.RLock()
	defer mu.RUnlock()
	if !loaded {
		panic("config: Env() called before Load()")
	}
	return env
}

// Warnings returns the non-fatal findings collected during Load.
func Warnings() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, len(warnings))
	copy(out, warnings)
	return out
}

func stringDefault(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func parseIntDefault(name string, defaultVal int, valid func(int) bool, warns *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || !valid(parsed) {
		appendWarningf(warns, "%s=%q is invalid, using %d", name, value, defaultVal)
		return defaultVal
	}
	return parsed
}

func parseFloatDefault(name string, defaultVal float64, warns *[]string) float64 {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return defaultVal
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		appendWarningf(warns, "%s=%q is invalid, using %g", name, value, defaultVal)
		return defaultVal
	}
	return parsed
}

func parseBoolDefault(name string, defaultVal bool, warns *[]string) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return defaultVal
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		appendWarningf(warns, "%s=%q is invalid, using %t", name, value, defaultVal)
		return defaultVal
	}
	return parsed
}

func sanitizeLogLevel(level, defaultVal string, warns *[]string) string {
	v := strings.ToLower(strings.TrimSpace(level))
	switch v {
	case "":
		return defaultVal
	case "debug", "info", "warn", "error":
		return v
	}
	appendWarningf(warns, "LOG_LEVEL=%q is unknown, using %q", level, defaultVal)
	return defaultVal
}

func appendWarningf(warns *[]string, format string, args ...any) {
	*warns = append(*warns, fmt.Sprintf(format, args...))
}

func greaterThanZero(v int) bool { return v > 0 }
func nonNegative(v int) bool     { return v >= 0 }

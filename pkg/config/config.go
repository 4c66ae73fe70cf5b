// Package config holds the runtime settings for the scam screener. Settings
// come from an optional YAML file overridden by environment variables, and
// are normalized by Validate before the pipeline sees them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tango-sec/scamscreener/pkg/rules"
)

// Config holds global settings for the screener.
// All settings can be configured via YAML file, environment variables, or
// programmatically.
type Config struct {
	// === Alerting ===
	MinAlertLevel       string   `yaml:"min_alert_level"`       // Minimum level that triggers a warning (default: HIGH)
	AutoCaptureLevel    string   `yaml:"auto_capture_level"`    // Minimum level for training auto-capture, or OFF (default: HIGH)
	ShowWarningMessages bool     `yaml:"show_warning_messages"` // Emit warning text on the output boundary
	DisabledRules       []string `yaml:"disabled_rules"`        // Rule names switched off (unknown names ignored)

	// === Core rule patterns (empty = built-in default) ===
	LinkPattern         string `yaml:"link_pattern"`
	UrgencyPattern      string `yaml:"urgency_pattern"`
	PaymentFirstPattern string `yaml:"payment_first_pattern"`
	AccountDataPattern  string `yaml:"account_data_pattern"`
	TooGoodPattern      string `yaml:"too_good_pattern"`
	TrustBaitPattern    string `yaml:"trust_bait_pattern"`

	// === Behavior flag patterns (empty = built-in default) ===
	ExternalPlatformPattern    string `yaml:"external_platform_pattern"`
	UpfrontPaymentPattern      string `yaml:"upfront_payment_pattern"`
	AccountDataBehaviorPattern string `yaml:"account_data_behavior_pattern"`
	MiddlemanPattern           string `yaml:"middleman_pattern"`

	// EntropyBonusWeight dampens high-entropy wall-of-text lines. Negative
	// values subtract from the total; -10..0 (default: -3).
	EntropyBonusWeight int `yaml:"entropy_bonus_weight"`

	// === Local model ===
	LocalAiEnabled              bool    `yaml:"local_ai_enabled"`
	LocalAiMaxScore             int     `yaml:"local_ai_max_score"`              // 0-100 (default: 22)
	LocalAiTriggerProbability   float64 `yaml:"local_ai_trigger_probability"`    // 0-1 (default: 0.620)
	LocalAiFunnelMaxScore       int     `yaml:"local_ai_funnel_max_score"`       // 0-100 (default: 30)
	LocalAiFunnelThresholdBonus float64 `yaml:"local_ai_funnel_threshold_bonus"` // 0-0.5 (default: 0.05)
	ModelPath                   string  `yaml:"model_path"`

	// === Funnel tracking ===
	FunnelWindowSize            int   `yaml:"funnel_window_size"`             // 5-60 (default: 20)
	FunnelWindowMillis          int64 `yaml:"funnel_window_millis"`           // 15s-900s (default: 180s)
	FunnelContextTTLMillis      int64 `yaml:"funnel_context_ttl_millis"`      // 60s-7200s (default: 600s)
	FunnelFullSequenceWeight    int   `yaml:"funnel_full_sequence_weight"`    // default: 28
	FunnelPartialSequenceWeight int   `yaml:"funnel_partial_sequence_weight"` // default: 14

	// === Mute filter ===
	MutePatterns          []string `yaml:"mute_patterns"`
	MuteEnabled           bool     `yaml:"mute_enabled"`
	MuteNotifyEnabled     bool     `yaml:"mute_notify_enabled"`
	MuteNotifyIntervalSec int      `yaml:"mute_notify_interval_sec"`

	// === Whitelist ===
	WhitelistedSenders []string `yaml:"whitelisted_senders"`

	// === Similarity matching ===
	SimilarityEnabled   bool    `yaml:"similarity_enabled"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // Levenshtein ratio 0-1 (default: 0.82)

	// === Optional collaborators ===
	RedisAddr   string `yaml:"redis_addr"`   // Feedback counter persistence (empty = local only)
	PostgresDSN string `yaml:"postgres_dsn"` // Auto-capture sample store (empty = disabled)
}

// NewDefaultConfig creates a Config with built-in defaults overridden by
// environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		MinAlertLevel:       GetEnv("SCREENER_MIN_ALERT_LEVEL", "HIGH"),
		AutoCaptureLevel:    GetEnv("SCREENER_AUTO_CAPTURE_LEVEL", "HIGH"),
		ShowWarningMessages: GetEnvBool("SCREENER_SHOW_WARNINGS", true),
		DisabledRules:       GetEnvSlice("SCREENER_DISABLED_RULES", nil),

		EntropyBonusWeight: GetEnvInt("SCREENER_ENTROPY_BONUS_WEIGHT", -3),

		LocalAiEnabled:              GetEnvBool("SCREENER_LOCAL_AI", true),
		LocalAiMaxScore:             GetEnvInt("SCREENER_LOCAL_AI_MAX_SCORE", 22),
		LocalAiTriggerProbability:   GetEnvFloat("SCREENER_LOCAL_AI_TRIGGER", 0.620),
		LocalAiFunnelMaxScore:       GetEnvInt("SCREENER_LOCAL_AI_FUNNEL_MAX_SCORE", 30),
		LocalAiFunnelThresholdBonus: GetEnvFloat("SCREENER_LOCAL_AI_FUNNEL_BONUS", 0.05),
		ModelPath:                   GetEnv("SCREENER_MODEL_PATH", "scam-screener-local-ai-model.json"),

		FunnelWindowSize:            GetEnvInt("SCREENER_FUNNEL_WINDOW_SIZE", rules.DefaultFunnelWindowSize),
		FunnelWindowMillis:          int64(GetEnvInt("SCREENER_FUNNEL_WINDOW_MILLIS", rules.DefaultFunnelWindowMillis)),
		FunnelContextTTLMillis:      int64(GetEnvInt("SCREENER_FUNNEL_CONTEXT_TTL_MILLIS", rules.DefaultFunnelContextTTLMillis)),
		FunnelFullSequenceWeight:    GetEnvInt("SCREENER_FUNNEL_FULL_WEIGHT", rules.DefaultFunnelFullSequenceWeight),
		FunnelPartialSequenceWeight: GetEnvInt("SCREENER_FUNNEL_PARTIAL_WEIGHT", rules.DefaultFunnelPartialSequenceWeight),

		MuteEnabled:           GetEnvBool("SCREENER_MUTE_ENABLED", true),
		MuteNotifyEnabled:     GetEnvBool("SCREENER_MUTE_NOTIFY", true),
		MuteNotifyIntervalSec: GetEnvInt("SCREENER_MUTE_NOTIFY_INTERVAL_SEC", 30),

		SimilarityEnabled:   GetEnvBool("SCREENER_SIMILARITY", true),
		SimilarityThreshold: GetEnvFloat("SCREENER_SIMILARITY_THRESHOLD", 0.82),

		RedisAddr:   GetEnv("SCREENER_REDIS_ADDR", ""),
		PostgresDSN: GetEnv("SCREENER_POSTGRES_DSN", ""),
	}
}

// LoadFile reads a YAML config file over the defaults. Environment variables
// already applied by NewDefaultConfig keep their values only where the file
// is silent, so the file is the base and the environment wins.
func LoadFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	cfg.Validate()
	return cfg, nil
}

// applyEnvOverrides re-applies environment variables on top of file values.
func applyEnvOverrides(cfg *Config) {
	cfg.MinAlertLevel = GetEnv("SCREENER_MIN_ALERT_LEVEL", cfg.MinAlertLevel)
	cfg.AutoCaptureLevel = GetEnv("SCREENER_AUTO_CAPTURE_LEVEL", cfg.AutoCaptureLevel)
	cfg.ModelPath = GetEnv("SCREENER_MODEL_PATH", cfg.ModelPath)
	cfg.RedisAddr = GetEnv("SCREENER_REDIS_ADDR", cfg.RedisAddr)
	cfg.PostgresDSN = GetEnv("SCREENER_POSTGRES_DSN", cfg.PostgresDSN)
}

// Validate clamps every tunable into its documented range. It never fails;
// out-of-range values are pulled back rather than rejected.
func (c *Config) Validate() {
	c.LocalAiMaxScore = clampInt(c.LocalAiMaxScore, 0, 100, 22)
	c.LocalAiTriggerProbability = clampFloat(c.LocalAiTriggerProbability, 0.0, 1.0, 0.620)
	c.LocalAiFunnelMaxScore = clampInt(c.LocalAiFunnelMaxScore, 0, 100, 30)
	c.LocalAiFunnelThresholdBonus = clampFloat(c.LocalAiFunnelThresholdBonus, 0.0, 0.5, 0.05)

	c.FunnelWindowSize = clampInt(c.FunnelWindowSize, rules.MinFunnelWindowSize, rules.MaxFunnelWindowSize, rules.DefaultFunnelWindowSize)
	c.FunnelWindowMillis = clampInt64(c.FunnelWindowMillis, rules.MinFunnelWindowMillis, rules.MaxFunnelWindowMillis, rules.DefaultFunnelWindowMillis)
	c.FunnelContextTTLMillis = clampInt64(c.FunnelContextTTLMillis, rules.MinFunnelContextTTLMillis, rules.MaxFunnelContextTTLMillis, rules.DefaultFunnelContextTTLMillis)
	if c.FunnelFullSequenceWeight <= 0 {
		c.FunnelFullSequenceWeight = rules.DefaultFunnelFullSequenceWeight
	}
	if c.FunnelPartialSequenceWeight <= 0 {
		c.FunnelPartialSequenceWeight = rules.DefaultFunnelPartialSequenceWeight
	}

	if c.EntropyBonusWeight < -10 || c.EntropyBonusWeight > 0 {
		c.EntropyBonusWeight = -3
	}

	if c.MuteNotifyIntervalSec <= 0 {
		c.MuteNotifyIntervalSec = 30
	}
	c.SimilarityThreshold = clampFloat(c.SimilarityThreshold, 0.5, 1.0, 0.82)
}

// MinAlertRiskLevel parses the configured minimum alert level.
func (c *Config) MinAlertRiskLevel() rules.RiskLevel {
	return rules.ParseRiskLevel(c.MinAlertLevel, rules.LevelHigh)
}

// AutoCaptureOff reports whether training auto-capture is disabled.
func (c *Config) AutoCaptureOff() bool {
	return strings.EqualFold(strings.TrimSpace(c.AutoCaptureLevel), "OFF")
}

// AutoCaptureMinLevel parses the auto-capture threshold. Only meaningful
// when AutoCaptureOff is false.
func (c *Config) AutoCaptureMinLevel() rules.RiskLevel {
	return rules.ParseRiskLevel(c.AutoCaptureLevel, rules.LevelHigh)
}

func clampInt(val, min, max, fallback int) int {
	if val == 0 {
		return fallback
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

func clampInt64(val, min, max, fallback int64) int64 {
	if val == 0 {
		return fallback
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

func clampFloat(val, min, max, fallback float64) float64 {
	if val == 0 {
		return fallback
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Helper functions for environment variable parsing.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable or a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MatchConfig carries the fixed scoring weights and confidence thresholds for
// the recommendation pipeline. Weights are configuration, never derived at
// runtime.
type MatchConfig struct {
	DistanceWeight    float64
	ReliabilityWeight float64
	CapabilityWeight  float64
	TextWeight        float64

	AutoAcceptThreshold float64 // top score above this may auto-accept
	VerifyThreshold     float64 // top score above this needs verification at worst
	MinMargin           float64 // gap to runner-up required for auto-accept
	CombinedTolerance   float64 // combined ranks first within this of split aggregate

	SearchLimit          int // per-side candidate cap
	VerifyConcurrency    int // bounded fan-out against the authoritative store
	DefaultMaxDistanceKm float64
}

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr      string
	RedisPassword  string
	RedisKeyPrefix string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	Match MatchConfig

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RedisKeyPrefix:  "providers",
		KafkaTopic:      "provider-profiles",
		Match:           DefaultMatchConfig(),
		LogLevel:        "info",
	}
}

func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		DistanceWeight:       0.35,
		ReliabilityWeight:    0.30,
		CapabilityWeight:     0.25,
		TextWeight:           0.10,
		AutoAcceptThreshold:  0.80,
		VerifyThreshold:      0.60,
		MinMargin:            0.10,
		CombinedTolerance:    0.05,
		SearchLimit:          50,
		VerifyConcurrency:    8,
		DefaultMaxDistanceKm: 25,
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisKeyPrefix, "REDIS_KEY_PREFIX")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setFloatFromEnv(&cfg.Match.DistanceWeight, "MATCH_WEIGHT_DISTANCE", &errs)
	setFloatFromEnv(&cfg.Match.ReliabilityWeight, "MATCH_WEIGHT_RELIABILITY", &errs)
	setFloatFromEnv(&cfg.Match.CapabilityWeight, "MATCH_WEIGHT_CAPABILITY", &errs)
	setFloatFromEnv(&cfg.Match.TextWeight, "MATCH_WEIGHT_TEXT", &errs)
	setFloatFromEnv(&cfg.Match.AutoAcceptThreshold, "MATCH_AUTO_ACCEPT_THRESHOLD", &errs)
	setFloatFromEnv(&cfg.Match.VerifyThreshold, "MATCH_VERIFY_THRESHOLD", &errs)
	setFloatFromEnv(&cfg.Match.MinMargin, "MATCH_MIN_MARGIN", &errs)
	setFloatFromEnv(&cfg.Match.CombinedTolerance, "MATCH_COMBINED_TOLERANCE", &errs)
	setIntFromEnv(&cfg.Match.SearchLimit, "MATCH_SEARCH_LIMIT", &errs)
	setIntFromEnv(&cfg.Match.VerifyConcurrency, "MATCH_VERIFY_CONCURRENCY", &errs)
	setFloatFromEnv(&cfg.Match.DefaultMaxDistanceKm, "MATCH_DEFAULT_MAX_DISTANCE_KM", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.Match.SearchLimit <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_SEARCH_LIMIT must be > 0"))
	}
	if cfg.Match.VerifyConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_VERIFY_CONCURRENCY must be > 0"))
	}
	if cfg.Match.AutoAcceptThreshold < cfg.Match.VerifyThreshold {
		errs = append(errs, fmt.Errorf("MATCH_AUTO_ACCEPT_THRESHOLD must be >= MATCH_VERIFY_THRESHOLD"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

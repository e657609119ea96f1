package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures every tunable parameter of the pipeline. Thresholds the
// policy depends on live here, not as constants inside the services. Values
// load from environment variables with defaults so the binary runs locally
// without setup.
type Config struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	KafkaBrokers  []string
	KafkaTopic    string

	// Admission policy.
	HourlyCap          int
	DailyCap           int
	HourlyWindow       time.Duration
	DailyWindow        time.Duration
	ViolationWindow    time.Duration
	ViolationThreshold int
	SuspensionDuration time.Duration

	// Redemption policy.
	CodeTTL       time.Duration
	CodeMinLength int
	CodeMaxLength int

	// Geofence defaults (client-side detector).
	GeofenceRadiusMeters float64
	HysteresisMeters     float64
	PollInterval         time.Duration
	OccupancyCacheTTL    time.Duration

	LogLevel string
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:        ":3333",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,

		KafkaTopic: "drink-ledger",

		HourlyCap:          3,
		DailyCap:           5,
		HourlyWindow:       time.Hour,
		DailyWindow:        24 * time.Hour,
		ViolationWindow:    7 * 24 * time.Hour,
		ViolationThreshold: 5,
		SuspensionDuration: 24 * time.Hour,

		CodeTTL:       24 * time.Hour,
		CodeMinLength: 6,
		CodeMaxLength: 8,

		GeofenceRadiusMeters: 100,
		HysteresisMeters:     20,
		PollInterval:         30 * time.Second,
		OccupancyCacheTTL:    5 * time.Second,
		LogLevel:             "info",
	}
}

// Load builds the config from the environment, collecting every parse error
// instead of failing on the first one.
func Load() (Config, error) {
	cfg := defaultConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	setIntFromEnv(&cfg.HourlyCap, "DRINK_HOURLY_CAP", &errs)
	setIntFromEnv(&cfg.DailyCap, "DRINK_DAILY_CAP", &errs)
	setDurationFromEnv(&cfg.HourlyWindow, "DRINK_HOURLY_WINDOW", &errs)
	setDurationFromEnv(&cfg.DailyWindow, "DRINK_DAILY_WINDOW", &errs)
	setDurationFromEnv(&cfg.ViolationWindow, "VIOLATION_WINDOW", &errs)
	setIntFromEnv(&cfg.ViolationThreshold, "VIOLATION_THRESHOLD", &errs)
	setDurationFromEnv(&cfg.SuspensionDuration, "SUSPENSION_DURATION", &errs)

	setDurationFromEnv(&cfg.CodeTTL, "REDEMPTION_CODE_TTL", &errs)
	setIntFromEnv(&cfg.CodeMinLength, "REDEMPTION_CODE_MIN_LENGTH", &errs)
	setIntFromEnv(&cfg.CodeMaxLength, "REDEMPTION_CODE_MAX_LENGTH", &errs)

	setFloatFromEnv(&cfg.GeofenceRadiusMeters, "GEOFENCE_RADIUS_METERS", &errs)
	setFloatFromEnv(&cfg.HysteresisMeters, "GEOFENCE_HYSTERESIS_METERS", &errs)
	setDurationFromEnv(&cfg.PollInterval, "GEOFENCE_POLL_INTERVAL", &errs)
	setDurationFromEnv(&cfg.OccupancyCacheTTL, "OCCUPANCY_CACHE_TTL", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.HourlyCap <= 0 {
		errs = append(errs, fmt.Errorf("DRINK_HOURLY_CAP must be > 0"))
	}
	if cfg.DailyCap < cfg.HourlyCap {
		errs = append(errs, fmt.Errorf("DRINK_DAILY_CAP must be >= DRINK_HOURLY_CAP"))
	}
	if cfg.CodeMinLength < 4 || cfg.CodeMaxLength < cfg.CodeMinLength {
		errs = append(errs, fmt.Errorf("invalid redemption code length bounds [%d,%d]", cfg.CodeMinLength, cfg.CodeMaxLength))
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

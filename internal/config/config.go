package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL         string
	ServerAddr          string
	PredictionURL       string
	PredictionTimeout   time.Duration
	DispatchTimeout     time.Duration
	DispatchTimeouts    map[string]time.Duration
	MaxDispatchAttempts int
	RobotMaxConcurrent  int
}

// Load reads configuration from environment. DATABASE_URL left empty
// selects the in-memory store; PREDICTION_URL left empty disables the
// prediction tier so scoring always falls back to registry strengths.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" && os.Getenv("POSTGRES_HOST") != "" {
		user := getenv("POSTGRES_USER", "delegation_hub")
		pass := getenv("POSTGRES_PASSWORD", "delegation_hub_pass")
		db := getenv("POSTGRES_DB", "delegation_hub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}
	addr := getenv("SERVER_ADDR", "0.0.0.0:8080")
	predictionURL := os.Getenv("PREDICTION_URL")
	predictionTimeout := parseDuration(os.Getenv("PREDICTION_TIMEOUT"), 2*time.Second)
	dispatchTimeout := parseDuration(os.Getenv("DISPATCH_TIMEOUT"), 30*time.Second)
	maxAttempts := parseInt(os.Getenv("MAX_DISPATCH_ATTEMPTS"), 3)
	robotSlots := parseInt(os.Getenv("ROBOT_MAX_CONCURRENT"), 1)

	return &Config{
		DatabaseURL:         dsn,
		ServerAddr:          addr,
		PredictionURL:       predictionURL,
		PredictionTimeout:   predictionTimeout,
		DispatchTimeout:     dispatchTimeout,
		DispatchTimeouts:    parseCapabilityTimeouts(dispatchTimeout),
		MaxDispatchAttempts: maxAttempts,
		RobotMaxConcurrent:  robotSlots,
	}, nil
}

// parseCapabilityTimeouts collects DISPATCH_TIMEOUT_<CAPABILITY> overrides,
// e.g. DISPATCH_TIMEOUT_HEAVY_LIFTING=2m applies to heavy_lifting.
func parseCapabilityTimeouts(def time.Duration) map[string]time.Duration {
	const prefix = "DISPATCH_TIMEOUT_"
	timeouts := make(map[string]time.Duration)
	for _, env := range os.Environ() {
		key, val, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		capability := strings.ToLower(strings.TrimPrefix(key, prefix))
		if capability == "" {
			continue
		}
		timeouts[capability] = parseDuration(val, def)
	}
	return timeouts
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

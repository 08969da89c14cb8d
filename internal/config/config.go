package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr            = ":3001"
	defaultBroadcastInterval   = 5 * time.Second
	defaultSimulatorInterval   = 5 * time.Second
	defaultTelemetryHistoryCap = 1000
	defaultReconnectBaseDelay  = time.Second
	defaultReconnectMaxDelay   = 30 * time.Second
	defaultBaseTemperature     = 25.0
	defaultBaseHumidity        = 50.0
	defaultWSURL               = "ws://localhost:3001/ws"

	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config stores runtime settings loaded from environment variables.
type Config struct {
	HTTPAddr            string
	FrontendDist        string
	BroadcastInterval   time.Duration
	SimulatorInterval   time.Duration
	TelemetryHistoryCap int
	ReconnectBaseDelay  time.Duration
	ReconnectMaxDelay   time.Duration
	RegistryBackend     string
	DBPath              string
	SeedFile            string
	SeedDevices         bool
	BaseTemperature     float64
	BaseHumidity        float64
	LogLevel            slog.Level
	LogFile             string
	WSURL               string
}

// Load builds Config from environment variables using stable defaults.
// A .env file in the working directory is loaded first when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:            getenv("HTTP_ADDR", defaultHTTPAddr),
		FrontendDist:        getenv("FRONTEND_DIST", ""),
		BroadcastInterval:   parseDuration("BROADCAST_INTERVAL", defaultBroadcastInterval),
		SimulatorInterval:   parseDuration("SIMULATOR_INTERVAL", defaultSimulatorInterval),
		TelemetryHistoryCap: parseInt("TELEMETRY_HISTORY_CAP", defaultTelemetryHistoryCap),
		ReconnectBaseDelay:  parseDuration("RECONNECT_BASE_DELAY", defaultReconnectBaseDelay),
		ReconnectMaxDelay:   parseDuration("RECONNECT_MAX_DELAY", defaultReconnectMaxDelay),
		RegistryBackend:     parseBackend(getenv("REGISTRY_BACKEND", BackendSQLite)),
		DBPath:              getenv("DB_PATH", ":memory:"),
		SeedFile:            getenv("SEED_FILE", ""),
		SeedDevices:         parseBool("SEED_DEVICES", true),
		BaseTemperature:     parseFloat("BASE_TEMPERATURE", defaultBaseTemperature),
		BaseHumidity:        parseFloat("BASE_HUMIDITY", defaultBaseHumidity),
		LogLevel:            parseLogLevel(getenv("LOG_LEVEL", "info")),
		LogFile:             getenv("LOG_FILE", ""),
		WSURL:               getenv("WS_URL", defaultWSURL),
	}
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

// parseDuration accepts Go duration syntax ("5s") or bare milliseconds ("5000").
func parseDuration(key string, fallback time.Duration) time.Duration {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ms <= 0 {
			return fallback
		}
		return time.Duration(ms) * time.Millisecond
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseInt(key string, fallback int) int {
	value, err := strconv.Atoi(getenv(key, ""))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseFloat(key string, fallback float64) float64 {
	value, err := strconv.ParseFloat(getenv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return value
}

func parseBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(getenv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func parseBackend(raw string) string {
	if strings.EqualFold(raw, BackendMemory) {
		return BackendMemory
	}
	return BackendSQLite
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

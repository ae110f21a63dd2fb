package config

import (
	"fmt"
	"os"
	"strconv"
)

// GatewayMode selects how the shared stores reach persistence.
type GatewayMode string

const (
	// GatewayModePostgres serves the gateway from the application database.
	GatewayModePostgres GatewayMode = "postgres"
	// GatewayModeREST delegates the gateway to a hosted PostgREST backend.
	GatewayModeREST GatewayMode = "rest"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port               string
	JWTSecret          string
	DBURL              string
	GatewayMode        GatewayMode
	GatewayURL         string
	GatewayAPIKey      string
	GatewayTimeoutSecs int
	ReadTimeoutSecs    int
	WriteTimeoutSecs   int
	IdleTimeoutSecs    int
	DBMaxConns         int
	DBMinConns         int
	DBMaxIdleSecs      int
	DBMaxLifeSecs      int
	DBConnTimeoutSecs  int
	DBStatementCache   int
}

// Load reads configuration from environment variables, applying defaults and validation.
func Load() (Config, error) {
	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		DBURL:              os.Getenv("DB_URL"),
		GatewayMode:        GatewayMode(getEnv("GATEWAY_MODE", string(GatewayModePostgres))),
		GatewayURL:         os.Getenv("GATEWAY_URL"),
		GatewayAPIKey:      os.Getenv("GATEWAY_API_KEY"),
		GatewayTimeoutSecs: getEnvInt("GATEWAY_TIMEOUT_SECS", 5),
		ReadTimeoutSecs:    getEnvInt("SERVER_READ_TIMEOUT", 15),
		WriteTimeoutSecs:   getEnvInt("SERVER_WRITE_TIMEOUT", 15),
		IdleTimeoutSecs:    getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		DBMaxConns:         getEnvInt("DB_MAX_CONNS", 20),
		DBMinConns:         getEnvInt("DB_MIN_CONNS", 2),
		DBMaxIdleSecs:      getEnvInt("DB_MAX_CONN_IDLE_SECS", 300),
		DBMaxLifeSecs:      getEnvInt("DB_MAX_CONN_LIFETIME_SECS", 3600),
		DBConnTimeoutSecs:  getEnvInt("DB_CONN_TIMEOUT_SECS", 10),
		DBStatementCache:   getEnvInt("DB_STATEMENT_CACHE_CAPACITY", 256),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.DBURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required")
	}
	switch cfg.GatewayMode {
	case GatewayModePostgres:
	case GatewayModeREST:
		if cfg.GatewayURL == "" {
			return Config{}, fmt.Errorf("GATEWAY_URL is required when GATEWAY_MODE=rest")
		}
		if cfg.GatewayAPIKey == "" {
			return Config{}, fmt.Errorf("GATEWAY_API_KEY is required when GATEWAY_MODE=rest")
		}
	default:
		return Config{}, fmt.Errorf("GATEWAY_MODE must be postgres or rest")
	}
	if cfg.GatewayTimeoutSecs <= 0 {
		return Config{}, fmt.Errorf("GATEWAY_TIMEOUT_SECS must be positive")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// Package config loads service configuration from the environment with
// sensible local-development defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
)

type ServerConfig struct {
	HTTPPort int
	GRPCPort int
}

type EngineConfig struct {
	// MaxWorkers bounds concurrent runs in a parameter sweep.
	MaxWorkers int
}

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

type ArrowConfig struct {
	// BatchSize is the row count per Arrow record in the IPC stream.
	BatchSize int
}

type Config struct {
	Environment string
	Server      ServerConfig
	Engine      EngineConfig
	ClickHouse  ClickHouseConfig
	Arrow       ArrowConfig
}

func Load() (*Config, error) {
	cfg := &Config{
		Environment: envStr("APP_ENV", "dev"),
		Server: ServerConfig{
			HTTPPort: 8080,
			GRPCPort: 9091,
		},
		Engine: EngineConfig{
			MaxWorkers: 4,
		},
		ClickHouse: ClickHouseConfig{
			Addr:     envStr("CLICKHOUSE_ADDR", "localhost:9000"),
			Database: envStr("CLICKHOUSE_DB", "backtest"),
			Username: envStr("CLICKHOUSE_USER", "backtest"),
			Password: envStr("CLICKHOUSE_PASSWORD", "backtest123"),
		},
		Arrow: ArrowConfig{
			BatchSize: 8192,
		},
	}

	var err error
	if cfg.Server.HTTPPort, err = envInt("HTTP_PORT", cfg.Server.HTTPPort); err != nil {
		return nil, err
	}
	if cfg.Server.GRPCPort, err = envInt("GRPC_PORT", cfg.Server.GRPCPort); err != nil {
		return nil, err
	}
	if cfg.Engine.MaxWorkers, err = envInt("ENGINE_MAX_WORKERS", cfg.Engine.MaxWorkers); err != nil {
		return nil, err
	}
	if cfg.Arrow.BatchSize, err = envInt("ARROW_BATCH_SIZE", cfg.Arrow.BatchSize); err != nil {
		return nil, err
	}
	if cfg.Engine.MaxWorkers < 1 {
		return nil, fmt.Errorf("ENGINE_MAX_WORKERS must be at least 1, got %d", cfg.Engine.MaxWorkers)
	}
	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

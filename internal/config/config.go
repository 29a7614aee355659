// Package config provides configuration management for the simulation engine.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	Logging LoggingConfig
	Solver  SolverConfig
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// SolverConfig holds iterative cycle solver tuning knobs. Defaults match
// §4.4: 10 iterations, 5% convergence threshold, a 4-entry oscillation
// window. These are tunable without a code change but do not alter default
// behavior when left unset.
type SolverConfig struct {
	MaxIterations        int
	ConvergenceThreshold float64
	OscillationWindow    int
}

// Load loads the configuration from environment variables, applying an
// optional .env file first.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Logging: LoggingConfig{
			Level:  getEnv("ATTRSIM_LOG_LEVEL", "info"),
			Format: getEnv("ATTRSIM_LOG_FORMAT", "json"),
		},
		Solver: SolverConfig{
			MaxIterations:        getEnvAsInt("ATTRSIM_MAX_ITERATIONS", 10),
			ConvergenceThreshold: getEnvAsFloat("ATTRSIM_CONVERGENCE_THRESHOLD", 0.05),
			OscillationWindow:    getEnvAsInt("ATTRSIM_OSCILLATION_WINDOW", 4),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Solver.MaxIterations < 1 {
		return fmt.Errorf("solver max iterations must be at least 1")
	}

	if c.Solver.ConvergenceThreshold <= 0 {
		return fmt.Errorf("solver convergence threshold must be positive")
	}

	if c.Solver.OscillationWindow < 2 {
		return fmt.Errorf("solver oscillation window must be at least 2")
	}

	return nil
}

// Helper functions for environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

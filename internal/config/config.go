// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP server
	Port string

	// Storage
	DataBackend  string // "sqlite" or "memory"
	SQLiteDBPath string

	// Ledger engine
	TxRetryLimit int

	// Monthly aggregate cache
	AggregateTTL       time.Duration
	AggregateCacheSize int

	// AMQP ledger event fanout
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets aggregate export (worker only)
	SheetsSpreadsheetID      string
	SheetsSheetName          string
	SheetsServiceAccountJSON string
	SheetsServiceAccountFile string
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8082"),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/conti.db"),

		TxRetryLimit: getEnvInt("TX_RETRY_LIMIT", 5),

		AggregateTTL:       getEnvDuration("AGGREGATE_TTL", 2*time.Minute),
		AggregateCacheSize: getEnvInt("AGGREGATE_CACHE_SIZE", 256),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "conti"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		SheetsSpreadsheetID:      getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetsSheetName:          getEnv("SHEETS_SHEET_NAME", "Aggregates"),
		SheetsServiceAccountJSON: getEnv("SHEETS_SERVICE_ACCOUNT_JSON", ""),
		SheetsServiceAccountFile: getEnv("SHEETS_SERVICE_ACCOUNT_FILE", ""),
	}
}

// Validate checks the configuration and returns an error describing every
// problem found.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port %q: must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			problems = append(problems, "SQLITE_DB_PATH cannot be empty with the sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					problems = append(problems, fmt.Sprintf("cannot create database directory %q: %v", dir, err))
				}
			}
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("invalid data backend %q: must be sqlite or memory", c.DataBackend))
	}

	if c.TxRetryLimit < 1 {
		problems = append(problems, "TX_RETRY_LIMIT must be at least 1")
	}
	if c.AggregateTTL <= 0 {
		problems = append(problems, "AGGREGATE_TTL must be positive")
	}
	if c.AggregateCacheSize < 1 {
		problems = append(problems, "AGGREGATE_CACHE_SIZE must be at least 1")
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL %q: %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme %q: must be amqp or amqps", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP_EXCHANGE cannot be empty when AMQP_URL is set")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP_QUEUE cannot be empty when AMQP_URL is set")
		}
	}

	if c.SheetsSpreadsheetID != "" {
		if c.SheetsServiceAccountJSON == "" && c.SheetsServiceAccountFile == "" {
			problems = append(problems, "sheets export needs SHEETS_SERVICE_ACCOUNT_JSON or SHEETS_SERVICE_ACCOUNT_FILE")
		}
		if c.SheetsServiceAccountFile != "" {
			if _, err := os.Stat(c.SheetsServiceAccountFile); os.IsNotExist(err) {
				problems = append(problems, fmt.Sprintf("service account file does not exist: %s", c.SheetsServiceAccountFile))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SheetsExportEnabled reports whether the worker should export aggregates.
func (c *Config) SheetsExportEnabled() bool {
	return c.SheetsSpreadsheetID != ""
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

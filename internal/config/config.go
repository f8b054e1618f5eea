// Package config loads service configuration from environment variables
// and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendSheets = "sheets"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Config represents the application configuration.
type Config struct {
	Port           string
	Backend        string
	Sheets         SheetsConfig
	BoltPath       string
	AuditDBPath    string // empty disables the audit trail
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string
	GCSBucket      string
	Notion         NotionConfig
}

// SheetsConfig locates the spreadsheet and its two worksheets.
type SheetsConfig struct {
	SpreadsheetID   string
	LedgerSheet     string
	RegistrySheet   string
	CredentialsJSON string
	CredentialsFile string
	Endpoint        string
	MaxRetries      int
}

// NotionConfig holds the Notion mirror settings.
type NotionConfig struct {
	Token        string
	DBID         string
	AccountsDBID string
}

// Load loads configuration from environment variables.
// It loads .env from the current directory when present, or the given
// file, which must then exist.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	maxRetries, err := parseIntEnv("SHEETS_MAX_RETRIES", 0)
	if err != nil {
		return nil, err
	}
	timeout, err := parseDurationEnv("REQUEST_TIMEOUT", 20*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		Backend: strings.ToLower(getEnvOrDefault("STORE_BACKEND", BackendSheets)),
		Sheets: SheetsConfig{
			SpreadsheetID:   os.Getenv("SPREADSHEET_ID"),
			LedgerSheet:     getEnvOrDefault("LEDGER_SHEET", "Transactions"),
			RegistrySheet:   getEnvOrDefault("REGISTRY_SHEET", "Setup"),
			CredentialsJSON: os.Getenv("GOOGLE_CREDENTIALS"),
			CredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
			Endpoint:        os.Getenv("SHEETS_ENDPOINT"),
			MaxRetries:      maxRetries,
		},
		BoltPath:       getEnvOrDefault("BOLT_PATH", "./data/ledger.db"),
		AuditDBPath:    os.Getenv("AUDIT_DB_PATH"),
		RequestTimeout: timeout,
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:      getEnvOrDefault("LOG_FORMAT", "console"),
		GCSBucket:      os.Getenv("GCS_BUCKET"),
		Notion: NotionConfig{
			Token:        os.Getenv("NOTION_TOKEN"),
			DBID:         os.Getenv("NOTION_DB_ID"),
			AccountsDBID: os.Getenv("NOTION_ACCOUNTS_DB_ID"),
		},
	}

	return cfg, nil
}

// Validate checks the settings the selected backend cannot run without.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSheets:
		return c.Require("SPREADSHEET_ID")
	case BackendBolt:
		return c.Require("BOLT_PATH")
	case BackendMemory:
		return nil
	}
	return fmt.Errorf("unknown STORE_BACKEND %q (want %s, %s or %s)", c.Backend, BackendSheets, BackendBolt, BackendMemory)
}

// Require reports the named environment keys whose value is unset.
func (c *Config) Require(keys ...string) error {
	var missing []string
	for _, key := range keys {
		if c.value(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}
	return nil
}

func (c *Config) value(key string) string {
	switch key {
	case "SPREADSHEET_ID":
		return c.Sheets.SpreadsheetID
	case "LEDGER_SHEET":
		return c.Sheets.LedgerSheet
	case "REGISTRY_SHEET":
		return c.Sheets.RegistrySheet
	case "BOLT_PATH":
		return c.BoltPath
	case "AUDIT_DB_PATH":
		return c.AuditDBPath
	case "GCS_BUCKET":
		return c.GCSBucket
	case "NOTION_TOKEN":
		return c.Notion.Token
	case "NOTION_DB_ID":
		return c.Notion.DBID
	case "NOTION_ACCOUNTS_DB_ID":
		return c.Notion.AccountsDBID
	}
	return ""
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}
	return parsed, nil
}

// parseDurationEnv accepts Go durations ("30s") or plain seconds ("30").
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid duration value for %s: %s", key, value)
	}
	return d, nil
}

// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App        AppConfig
	Logger     LoggerConfig
	Data       DataConfig
	Server     ServerConfig
	Steam      SteamConfig
	Client     ClientConfig
	Aggregator AggregatorConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds local data storage configuration.
type DataConfig struct {
	// BasePath is the directory holding the disk cache and the settings file.
	BasePath string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8090)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
}

// SteamConfig holds Steam Web API credentials.
// Both values may be empty at startup; operations that need them return
// a MissingCredentials error instead of attempting a network call.
type SteamConfig struct {
	APIKey string
	UserID string
}

// ClientConfig holds remote-data client tunables.
type ClientConfig struct {
	// MaxConcurrentRequests caps simultaneous outbound HTTP calls (default: 6).
	MaxConcurrentRequests int
	// RequestsPerSecond paces outbound calls once a permit is held (default: 6).
	RequestsPerSecond float64
	// RequestTimeout is the total per-request timeout (default: 15s).
	RequestTimeout time.Duration
	// ConnectTimeout bounds connection establishment (default: 5s).
	ConnectTimeout time.Duration
	// AchievementTTL is the in-memory summary cache TTL (default: 5m).
	AchievementTTL time.Duration
	// SchemaTTL is the in-memory schema cache TTL (default: 1h).
	SchemaTTL time.Duration
	// AchievementCacheSize bounds the summary cache (default: 100 entries).
	AchievementCacheSize int
	// SchemaCacheSize bounds the schema cache (default: 50 entries).
	SchemaCacheSize int
	// MetadataTTL is the disk app-metadata cache TTL (default: 24h).
	MetadataTTL time.Duration
}

// AggregatorConfig holds progress aggregation tunables.
type AggregatorConfig struct {
	// MaxConcurrentGames caps per-game pipelines running at once (default: 4).
	MaxConcurrentGames int
	// SafetyTimeout force-resets a stuck computation (default: 5m).
	SafetyTimeout time.Duration
	// ProgressTTL is the disk aggregate cache TTL (default: 24h).
	ProgressTTL time.Duration
	// GameCountTolerance is the allowed catalog-count drift before a cached
	// aggregate is considered stale (default: 5).
	GameCountTolerance int
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for local data storage")

	serverPort := flag.String("port", "", "Server port (default: 8090)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")

	steamAPIKey := flag.String("steam-api-key", "", "Steam Web API key")
	steamUserID := flag.String("steam-user-id", "", "64-bit Steam user ID")

	maxRequests := flag.String("max-requests", "", "Max concurrent outbound API requests (default: 6)")
	maxGames := flag.String("max-games", "", "Max concurrent per-game pipelines (default: 4)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Server: ServerConfig{
			Port: getConfigValue(*serverPort, "SERVER_PORT", "8090"),
		},
		Steam: SteamConfig{
			APIKey: getConfigValue(*steamAPIKey, "STEAM_API_KEY", ""),
			UserID: getConfigValue(*steamUserID, "STEAM_USER_ID", ""),
		},
		Client: ClientConfig{
			MaxConcurrentRequests: getIntConfigValue(*maxRequests, "MAX_API_REQUESTS", 6),
			RequestsPerSecond:     getFloatConfigValue("", "API_REQUESTS_PER_SECOND", 6.0),
			AchievementCacheSize:  getIntConfigValue("", "ACHIEVEMENT_CACHE_SIZE", 100),
			SchemaCacheSize:       getIntConfigValue("", "SCHEMA_CACHE_SIZE", 50),
		},
		Aggregator: AggregatorConfig{
			MaxConcurrentGames: getIntConfigValue(*maxGames, "MAX_CONCURRENT_GAMES", 4),
			GameCountTolerance: getIntConfigValue("", "GAME_COUNT_TOLERANCE", 5),
		},
	}

	// Parse server timeouts.
	var err error
	if cfg.Server.ReadTimeout, err = parseDurationValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s"); err != nil {
		return nil, fmt.Errorf("invalid read timeout: %w", err)
	}
	if cfg.Server.WriteTimeout, err = parseDurationValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"); err != nil {
		return nil, fmt.Errorf("invalid write timeout: %w", err)
	}
	if cfg.Server.IdleTimeout, err = parseDurationValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"); err != nil {
		return nil, fmt.Errorf("invalid idle timeout: %w", err)
	}

	// Parse client timings.
	if cfg.Client.RequestTimeout, err = parseDurationValue("", "API_REQUEST_TIMEOUT", "15s"); err != nil {
		return nil, fmt.Errorf("invalid request timeout: %w", err)
	}
	if cfg.Client.ConnectTimeout, err = parseDurationValue("", "API_CONNECT_TIMEOUT", "5s"); err != nil {
		return nil, fmt.Errorf("invalid connect timeout: %w", err)
	}
	if cfg.Client.AchievementTTL, err = parseDurationValue("", "ACHIEVEMENT_CACHE_TTL", "5m"); err != nil {
		return nil, fmt.Errorf("invalid achievement cache TTL: %w", err)
	}
	if cfg.Client.SchemaTTL, err = parseDurationValue("", "SCHEMA_CACHE_TTL", "1h"); err != nil {
		return nil, fmt.Errorf("invalid schema cache TTL: %w", err)
	}
	if cfg.Client.MetadataTTL, err = parseDurationValue("", "METADATA_CACHE_TTL", "24h"); err != nil {
		return nil, fmt.Errorf("invalid metadata cache TTL: %w", err)
	}

	// Parse aggregator timings.
	if cfg.Aggregator.SafetyTimeout, err = parseDurationValue("", "PROGRESS_SAFETY_TIMEOUT", "5m"); err != nil {
		return nil, fmt.Errorf("invalid safety timeout: %w", err)
	}
	if cfg.Aggregator.ProgressTTL, err = parseDurationValue("", "PROGRESS_CACHE_TTL", "24h"); err != nil {
		return nil, fmt.Errorf("invalid progress cache TTL: %w", err)
	}

	// Expand and validate data path.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	if c.Client.MaxConcurrentRequests < 1 {
		return fmt.Errorf("max concurrent requests must be at least 1, got %d", c.Client.MaxConcurrentRequests)
	}
	if c.Aggregator.MaxConcurrentGames < 1 {
		return fmt.Errorf("max concurrent games must be at least 1, got %d", c.Aggregator.MaxConcurrentGames)
	}
	if c.Aggregator.GameCountTolerance < 0 {
		return fmt.Errorf("game count tolerance cannot be negative, got %d", c.Aggregator.GameCountTolerance)
	}

	// Steam credentials are allowed to be empty here - operations fail with
	// MissingCredentials until they are configured via settings.

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "TrophyDeck", "data")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result float64
	if _, err := fmt.Sscanf(strValue, "%g", &result); err != nil {
		return defaultValue
	}
	return result
}

// parseDurationValue resolves a duration from flag, env var, or default.
func parseDurationValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	str := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(str)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", str, err)
	}
	return d, nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}

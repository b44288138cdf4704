package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pomodoro/focusd/internal/cycle"
)

type Config struct {
	Port          string
	DBPath        string
	JWTSecret     string
	TokenTTL      time.Duration
	CORSOrigins   []string
	MigrationsDir string
	Cycle         cycle.Table
	TickInterval  time.Duration
	AutoAdvance   bool
	LogLevel      string
	LogPretty     bool
}

// fileConfig mirrors the optional YAML file named by CONFIG_FILE. Zero
// values leave the defaults in place; environment variables win over both.
type fileConfig struct {
	Port           string   `yaml:"port"`
	DBPath         string   `yaml:"db_path"`
	JWTSecret      string   `yaml:"jwt_secret"`
	TokenTTLHours  int      `yaml:"token_ttl_hours"`
	CORSOrigins    []string `yaml:"cors_origins"`
	MigrationsDir  string   `yaml:"migrations_dir"`
	Cycle          []string `yaml:"cycle"`
	TickIntervalMS int      `yaml:"tick_interval_ms"`
	AutoAdvance    *bool    `yaml:"auto_advance"`
	LogLevel       string   `yaml:"log_level"`
	LogPretty      *bool    `yaml:"log_pretty"`
}

func Load() (Config, error) {
	file, err := readFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}

	defaultCycle := strings.Join(file.Cycle, ",")
	if defaultCycle == "" {
		defaultCycle = cycle.Default().String()
	}
	table, err := cycle.ParseTable(getEnv("POMODORO_CYCLE", defaultCycle))
	if err != nil {
		return Config{}, fmt.Errorf("parse cycle: %w", err)
	}

	return Config{
		Port:          getEnv("PORT", or(file.Port, "8080")),
		DBPath:        getEnv("DB_PATH", or(file.DBPath, "./data/pomodoro.db")),
		JWTSecret:     getEnv("JWT_SECRET", or(file.JWTSecret, "change-this-secret")),
		TokenTTL:      time.Duration(getEnvInt("TOKEN_TTL_HOURS", orInt(file.TokenTTLHours, 72))) * time.Hour,
		CORSOrigins:   getEnvList("CORS_ORIGINS", orList(file.CORSOrigins, []string{"http://localhost:5173", "http://127.0.0.1:5173"})),
		MigrationsDir: getEnv("MIGRATIONS_DIR", file.MigrationsDir),
		Cycle:         table,
		TickInterval:  time.Duration(getEnvInt("TICK_INTERVAL_MS", orInt(file.TickIntervalMS, 1000))) * time.Millisecond,
		AutoAdvance:   getEnvBool("AUTO_ADVANCE", orBool(file.AutoAdvance, false)),
		LogLevel:      getEnv("LOG_LEVEL", or(file.LogLevel, "info")),
		LogPretty:     getEnvBool("LOG_PRETTY", orBool(file.LogPretty, false)),
	}, nil
}

func readFile(path string) (fileConfig, error) {
	var file fileConfig
	if path == "" {
		return file, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return file, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return file, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

func or(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func orInt(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func orBool(value *bool, fallback bool) bool {
	if value != nil {
		return *value
	}
	return fallback
}

func orList(value, fallback []string) []string {
	if len(value) > 0 {
		return value
	}
	return fallback
}

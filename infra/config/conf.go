package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/paysettle/infra/validate"
)

type Config struct {
	Validator *validator.Validate
}

// AppConfig represents the application configuration
type AppConfig struct {
	Port              string
	APIKey            string
	Environment       string
	StorageDriver     string
	SQLitePath        string
	MySQLDSN          string
	OrderServiceURL   string
	OrderServiceToken string
	OrderTimeout      time.Duration
	OpenSearchURL     string
	OpenSearchUser    string
	OpenSearchPass    string
	EnableLogging     bool
	LoggingLevel      string
	LogRetentionDays  int

	NotificationIPWhitelist string
	RateLimitPerMinute      int
	AllowedOrigins          []string
}

var (
	instance          *Config
	appConfigInstance *AppConfig
	instanceOnce      sync.Once
	appConfigOnce     sync.Once
)

func App() *Config {
	instanceOnce.Do(func() {
		instance = &Config{
			Validator: validate.New(),
		}
	})
	return instance
}

// GetAppConfig returns the application configuration
func GetAppConfig() *AppConfig {
	appConfigOnce.Do(func() {
		appConfigInstance = LoadAppConfig()
	})
	return appConfigInstance
}

// LoadAppConfig reads the application configuration from the environment
func LoadAppConfig() *AppConfig {
	return &AppConfig{
		Port:              GetEnv("APP_PORT", "9999"),
		APIKey:            GetEnv("API_KEY", ""),
		Environment:       GetEnv("ENVIRONMENT", "development"),
		StorageDriver:     strings.ToLower(GetEnv("STORAGE_DRIVER", "sqlite")),
		SQLitePath:        GetEnv("SQLITE_PATH", "./data/paysettle.db"),
		MySQLDSN:          GetEnv("MYSQL_DSN", ""),
		OrderServiceURL:   GetEnv("ORDER_SERVICE_URL", "http://localhost:8080/api"),
		OrderServiceToken: GetEnv("ORDER_SERVICE_TOKEN", ""),
		OrderTimeout:      GetDurationEnv("ORDER_SERVICE_TIMEOUT", 15*time.Second),
		OpenSearchURL:     GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
		OpenSearchUser:    GetEnv("OPENSEARCH_USER", ""),
		OpenSearchPass:    GetEnv("OPENSEARCH_PASSWORD", ""),
		EnableLogging:     GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", false),
		LoggingLevel:      GetEnv("LOGGING_LEVEL", "info"),
		LogRetentionDays:  GetIntEnv("LOG_RETENTION_DAYS", 30),

		NotificationIPWhitelist: GetEnv("NOTIFICATION_IP_WHITELIST", ""),
		RateLimitPerMinute:      GetIntEnv("RATE_LIMIT_PER_MINUTE", 100),
		AllowedOrigins:          splitList(GetEnv("CORS_ALLOWED_ORIGINS", "*")),
	}
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDurationEnv accepts Go durations ("90s") or whole minutes ("60")
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

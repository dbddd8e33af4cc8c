package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       *AppConfig       `yaml:"app"`
	Logging   *LoggingConfig   `yaml:"logging"`
	Database  *DatabaseConfig  `yaml:"database"`
	Postgres  *PostgresConfig  `yaml:"postgres"`
	Redis     *RedisConfig     `yaml:"redis"`
	RabbitMQ  *RabbitMQConfig  `yaml:"rabbitmq"`
	Push      *PushConfig      `yaml:"push"`
	SMS       *SMSConfig       `yaml:"sms"`
	WebSocket *WebSocketConfig `yaml:"websocket"`
	Chat      *ChatConfig      `yaml:"chat"`
	Security  *SecurityConfig  `yaml:"security"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	Port        int    `yaml:"port"`
	Host        string `yaml:"host"`
	BaseURL     string `yaml:"base_url"`
	Debug       bool   `yaml:"debug"`
	Timezone    string `yaml:"timezone"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	TimeFormat string `yaml:"time_format"`
	Caller     bool   `yaml:"caller"`
}

type SecurityConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	JWTAccessTokenTTL  time.Duration `yaml:"jwt_access_token_ttl"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	TrustedProxies     []string      `yaml:"trusted_proxies"`
}

// Load reads an optional .env file and then builds the configuration from
// the process environment.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	config := &Config{
		App:       loadAppConfig(),
		Logging:   loadLoggingConfig(),
		Database:  loadDatabaseConfig(),
		Postgres:  loadPostgresConfig(),
		Redis:     loadRedisConfig(),
		RabbitMQ:  loadRabbitMQConfig(),
		Push:      loadPushConfig(),
		SMS:       loadSMSConfig(),
		WebSocket: loadWebSocketConfig(),
		Chat:      loadChatConfig(),
		Security:  loadSecurityConfig(),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	switch c.Database.LedgerBackend {
	case LedgerBackendMongo, LedgerBackendPostgres, LedgerBackendMemory:
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Database.LedgerBackend)
	}

	switch c.Chat.BusBackend {
	case BusBackendLocal, BusBackendRedis:
	default:
		return fmt.Errorf("unknown chat bus backend %q", c.Chat.BusBackend)
	}

	if c.SMS.Enabled {
		switch c.SMS.Provider {
		case SMSProviderTwilio, SMSProviderSNS:
		default:
			return fmt.Errorf("unknown sms provider %q", c.SMS.Provider)
		}
	}

	if c.Chat.ReplayLimit <= 0 {
		return fmt.Errorf("chat replay limit must be positive, got %d", c.Chat.ReplayLimit)
	}
	if c.Chat.MaxMessageLength <= 0 {
		return fmt.Errorf("chat max message length must be positive, got %d", c.Chat.MaxMessageLength)
	}
	if c.Chat.NotificationThreshold <= 0 || c.Chat.NotificationInterval <= 0 {
		return fmt.Errorf("notification threshold and interval must be positive")
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}

	return nil
}

func loadAppConfig() *AppConfig {
	return &AppConfig{
		Name:        getEnv("APP_NAME", "Carpool"),
		Version:     getEnv("APP_VERSION", "1.0.0"),
		Environment: getEnv("APP_ENV", "development"),
		Port:        getEnvAsInt("APP_PORT", 8080),
		Host:        getEnv("APP_HOST", "localhost"),
		BaseURL:     getEnv("APP_BASE_URL", "http://localhost:8080"),
		Debug:       getEnvAsBool("APP_DEBUG", true),
		Timezone:    getEnv("APP_TIMEZONE", "UTC"),
	}
}

func loadLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Format:     getEnv("LOG_FORMAT", "json"),
		Output:     getEnv("LOG_OUTPUT", "stdout"),
		TimeFormat: getEnv("LOG_TIME_FORMAT", time.RFC3339),
		Caller:     getEnvAsBool("LOG_CALLER", false),
	}
}

func loadSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		JWTSecret:          getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
		JWTAccessTokenTTL:  getEnvAsDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		TrustedProxies:     getEnvAsSlice("TRUSTED_PROXIES", []string{}),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

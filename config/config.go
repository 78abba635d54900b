package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Firebase FirebaseConfig
	Oracle   OracleConfig
	Demand   DemandConfig
	Kafka    KafkaConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Path string
}

type JWTConfig struct {
	SigningKey string // HS256 shared key for bearer tokens
	Issuer     string
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsPath string
}

// Enabled reports whether Firebase ID tokens should be accepted.
func (f FirebaseConfig) Enabled() bool {
	return f.ProjectID != ""
}

type OracleConfig struct {
	GeminiAPIKey   string
	ShelfLifeModel string
	ForecastModel  string
	Timeout        time.Duration
	// Locale passed to the shelf-life oracle when the owner has no city on file.
	DefaultLocale string
}

type DemandConfig struct {
	WindowDays int
	TopN       int
}

type KafkaConfig struct {
	Brokers []string // empty disables event publishing
	Topic   string
}

type LogConfig struct {
	Level       int  // logr verbosity; 1 enables debug traces
	Development bool // human-readable console output
}

// Load reads an optional .env file (envFile, or ".env" when empty) and
// returns configuration from environment variables. A missing file is not
// an error; values already in the environment win.
func Load(envFile string) *Config {
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "foodloop.db"),
		},
		JWT: JWTConfig{
			SigningKey: getEnv("JWT_SIGNING_KEY", ""),
			Issuer:     getEnv("JWT_ISSUER", "foodloop"),
		},
		Firebase: FirebaseConfig{
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		},
		Oracle: OracleConfig{
			GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
			ShelfLifeModel: getEnv("SHELF_LIFE_MODEL", "models/gemini-2.0-flash"),
			ForecastModel:  getEnv("FORECAST_MODEL", "models/gemini-1.5-pro"),
			Timeout:        getEnvDuration("ORACLE_TIMEOUT", 15*time.Second),
			DefaultLocale:  getEnv("ORACLE_DEFAULT_LOCALE", "India"),
		},
		Demand: DemandConfig{
			WindowDays: getEnvInt("FORECAST_WINDOW_DAYS", 120),
			TopN:       getEnvInt("FORECAST_TOP_N", 5),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "foodloop.events"),
		},
		Log: LogConfig{
			Level:       getEnvInt("LOG_LEVEL", 0),
			Development: getEnvBool("LOG_DEVELOPMENT", false),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolVal, err := strconv.ParseBool(value)
		if err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Vision   VisionConfig
	LLM      LLMConfig
	Storage  StorageConfig
	Server   ServerConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver      string // "postgres" or "sqlite"
	DSN         string
	MaxConns    int
	DialTimeout time.Duration
}

// VisionConfig holds text-detection service configuration
type VisionConfig struct {
	APIKey   string
	BaseURL  string
	Language string
	Timeout  time.Duration
}

// LLMConfig holds language-model configuration
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// StorageConfig holds upload storage configuration
type StorageConfig struct {
	UploadDir string
}

// ServerConfig holds daemon configuration
type ServerConfig struct {
	GRPCAddr   string
	InboxDir   string
	EmployeeID int64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:      getEnv("DB_DRIVER", "sqlite"),
			DSN:         getEnv("DB_URL", "receipts.sqlite"),
			MaxConns:    getEnvAsInt("DB_MAX_CONNS", 10),
			DialTimeout: getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Vision: VisionConfig{
			APIKey:   getEnv("GOOGLE_VISION_API_KEY", ""),
			BaseURL:  getEnv("GOOGLE_VISION_BASE_URL", "https://vision.googleapis.com"),
			Language: getEnv("OCR_LANGUAGE", "en"),
			Timeout:  getEnvAsDuration("OCR_TIMEOUT", 45*time.Second),
		},
		LLM: LLMConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			MaxTokens:   getEnvAsInt("OPENAI_MAX_TOKENS", 1000),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Storage: StorageConfig{
			UploadDir: getEnv("UPLOAD_DIR", "./uploads"),
		},
		Server: ServerConfig{
			GRPCAddr:   getEnv("GRPC_ADDR", ":8080"),
			InboxDir:   getEnv("INBOX_DIR", "./inbox"),
			EmployeeID: getEnvAsInt64("DEFAULT_EMPLOYEE_ID", 0),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
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

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrPrecondition)
	}
	if c.Vision.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "GOOGLE_VISION_API_KEY is required", ErrPrecondition)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrPrecondition)
	}
	return nil
}

// Package config provides environment configuration for the chat client.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Storage settings
	StorageDriver     string
	SQLitePath        string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	StoragePassphrase string

	// NATS settings (event mirror, disabled when URL is empty)
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings (API auth, disabled when secret is empty)
	JWTSecret     string
	JWTExpiration time.Duration

	// LLM settings
	LLMProvider     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	DefaultModel    string
	TitleModel      string
	EmbeddingModel  string
	EmbeddingAPIKey string
	RequestTimeout  time.Duration

	// Retrieval settings
	ChunkSize         int
	ChunkOverlap      int
	RetrievalTopK     int
	EmbeddingCacheTTL time.Duration

	// Voice settings
	SpeechRecognition  bool
	SpeechSynthesis    bool
	TranscriptionModel string

	// HTTP
	CORSOrigins []string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string
	LogFile  string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// fileConfig is the optional TOML overlay read from CONFIG_FILE. Environment
// variables take precedence over it.
type fileConfig struct {
	Server struct {
		Port string `toml:"port"`
	} `toml:"server"`
	Storage struct {
		Driver     string `toml:"driver"`
		SQLitePath string `toml:"sqlite_path"`
		RedisAddr  string `toml:"redis_addr"`
	} `toml:"storage"`
	LLM struct {
		Provider       string `toml:"provider"`
		BaseURL        string `toml:"base_url"`
		DefaultModel   string `toml:"default_model"`
		TitleModel     string `toml:"title_model"`
		EmbeddingModel string `toml:"embedding_model"`
	} `toml:"llm"`
	RAG struct {
		ChunkSize    int `toml:"chunk_size"`
		ChunkOverlap int `toml:"chunk_overlap"`
		TopK         int `toml:"top_k"`
	} `toml:"rag"`
	Voice struct {
		Recognition *bool `toml:"recognition"`
		Synthesis   *bool `toml:"synthesis"`
	} `toml:"voice"`
	LogLevel string `toml:"log_level"`
}

// Load reads configuration from a .env file (if present), the optional TOML
// file named by CONFIG_FILE and environment variables, in increasing order of
// precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var fc fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	return fromEnv(&fc), nil
}

func fromEnv(fc *fileConfig) *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", or(fc.Server.Port, "8080")),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 180*time.Second),

		// Storage
		StorageDriver:     getEnv("STORAGE_DRIVER", or(fc.Storage.Driver, "sqlite")),
		SQLitePath:        getEnv("SQLITE_PATH", or(fc.Storage.SQLitePath, defaultSQLitePath())),
		RedisAddr:         getEnv("REDIS_ADDR", or(fc.Storage.RedisAddr, "localhost:6379")),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getIntEnv("REDIS_DB", 0),
		StoragePassphrase: getEnv("STORAGE_PASSPHRASE", ""),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 24*time.Hour),

		// LLM
		LLMProvider:     getEnv("LLM_PROVIDER", or(fc.LLM.Provider, "openai")),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", fc.LLM.BaseURL),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", or(fc.LLM.DefaultModel, "gpt-4o")),
		TitleModel:      getEnv("TITLE_MODEL", or(fc.LLM.TitleModel, "gpt-4o-mini")),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", or(fc.LLM.EmbeddingModel, "text-embedding-3-small")),
		EmbeddingAPIKey: getEnv("EMBEDDING_API_KEY", ""),
		RequestTimeout:  getDurationEnv("LLM_REQUEST_TIMEOUT", 120*time.Second),

		// Retrieval
		ChunkSize:         getIntEnv("RAG_CHUNK_SIZE", orInt(fc.RAG.ChunkSize, 1000)),
		ChunkOverlap:      getIntEnv("RAG_CHUNK_OVERLAP", orInt(fc.RAG.ChunkOverlap, 200)),
		RetrievalTopK:     getIntEnv("RAG_TOP_K", orInt(fc.RAG.TopK, 4)),
		EmbeddingCacheTTL: getDurationEnv("RAG_EMBEDDING_CACHE_TTL", time.Hour),

		// Voice
		SpeechRecognition:  getBoolEnv("SPEECH_RECOGNITION", orBool(fc.Voice.Recognition, true)),
		SpeechSynthesis:    getBoolEnv("SPEECH_SYNTHESIS", orBool(fc.Voice.Synthesis, true)),
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", "whisper-1"),

		CORSOrigins: getListEnv("CORS_ORIGINS"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", or(fc.LogLevel, "info")),
		LogFile:  getEnv("LOG_FILE", ""),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func defaultSQLitePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "voicechat.db"
	}
	return filepath.Join(dir, "voicechat", "voicechat.db")
}

func or(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func orInt(value, fallback int) int {
	if value != 0 {
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

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

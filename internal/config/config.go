package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
)

const defaultJWTSecret = "your-secret-key-change-this-in-production"

type Config struct {
	Port          string
	AllowedOrigin string

	Backend       string
	MongoURI      string
	MongoDatabase string
	SQLitePath    string
	PebblePath    string

	RedisAddr string
	ServerID  string

	JWTSecret      string
	AccessTokenTTL time.Duration

	WriteTimeout   time.Duration
	PostRateLimit  int
	PostRateWindow time.Duration

	LogLevel       string
	LogDevelopment bool
}

// UsingDefaultSecret reports whether JWT_SECRET was left unset.
func (c *Config) UsingDefaultSecret() bool {
	return c.JWTSecret == defaultJWTSecret
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://localhost:3000")
	v.SetDefault("PERSISTENCE_BACKEND", BackendMemory)
	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGODB_DATABASE", "chatapp")
	v.SetDefault("SQLITE_PATH", "chatapp.db")
	v.SetDefault("PEBBLE_PATH", "data/messages")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("SERVER_ID", "server-1")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("WRITE_TIMEOUT", "5s")
	v.SetDefault("POST_RATE_LIMIT", 30)
	v.SetDefault("POST_RATE_WINDOW", "1m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEVELOPMENT", false)
	v.AutomaticEnv()
	return v
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	return fromViper(newViper())
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:           v.GetString("PORT"),
		AllowedOrigin:  v.GetString("ALLOWED_ORIGIN"),
		Backend:        v.GetString("PERSISTENCE_BACKEND"),
		MongoURI:       v.GetString("MONGODB_URI"),
		MongoDatabase:  v.GetString("MONGODB_DATABASE"),
		SQLitePath:     v.GetString("SQLITE_PATH"),
		PebblePath:     v.GetString("PEBBLE_PATH"),
		RedisAddr:      v.GetString("REDIS_ADDR"),
		ServerID:       v.GetString("SERVER_ID"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		AccessTokenTTL: v.GetDuration("ACCESS_TOKEN_TTL"),
		WriteTimeout:   v.GetDuration("WRITE_TIMEOUT"),
		PostRateLimit:  v.GetInt("POST_RATE_LIMIT"),
		PostRateWindow: v.GetDuration("POST_RATE_WINDOW"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogDevelopment: v.GetBool("LOG_DEVELOPMENT"),
	}

	switch cfg.Backend {
	case BackendMemory, BackendMongo, BackendSQLite, BackendPebble:
	default:
		return nil, fmt.Errorf("unknown PERSISTENCE_BACKEND %q", cfg.Backend)
	}
	if cfg.WriteTimeout <= 0 {
		return nil, fmt.Errorf("WRITE_TIMEOUT must be positive, got %s", cfg.WriteTimeout)
	}
	if cfg.PostRateLimit > 0 && cfg.PostRateWindow <= 0 {
		return nil, fmt.Errorf("POST_RATE_WINDOW must be positive when POST_RATE_LIMIT is set")
	}

	return cfg, nil
}

package config

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"strconv"
)

// server config, resolved from environment variables; CLI flags override.
type Config struct {
	Port         string
	PresenterKey string
	Watch        bool
	QuestionsDB  string
}

// loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:         getEnvOrDefault("SLIDECAST_PORT", "5050"),
		PresenterKey: os.Getenv("SLIDECAST_PRESENTER_KEY"),
		Watch:        getEnvBool("SLIDECAST_WATCH", true),
		QuestionsDB:  getEnvOrDefault("SLIDECAST_QUESTIONS_DB", ""),
	}
}

// GenerateKey returns a random six-digit presenter key, used when none is
// configured.
func GenerateKey() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		// crypto/rand only fails when the platform entropy source is broken.
		panic(err)
	}
	return fmt.Sprintf("%06d", n.Int64())
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

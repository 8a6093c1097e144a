package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ProjectID       string
	LogLevel        string
	Port            string
	AnalyticsURL    string
	OptionsURL      string
	AnalyticsSecret string
	SessionIdleTTL  time.Duration
}

// New reads the environment, loading a .env file first when one exists.
// Variables already set in the environment win over the file.
func New() *Config {
	_ = godotenv.Load()

	return &Config{
		ProjectID:       os.Getenv("PROJECTID"),
		LogLevel:        os.Getenv("LOGLEVEL"),
		Port:            getEnv("PORT", "8080"),
		AnalyticsURL:    os.Getenv("ANALYTICSURL"),
		OptionsURL:      os.Getenv("OPTIONSURL"),
		AnalyticsSecret: os.Getenv("ANALYTICSSECRET"),
		SessionIdleTTL:  getDuration("SESSIONIDLETTL", 30*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getDuration parses a Go duration such as "45m"; unset or invalid values
// fall back.
func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	DBPath         string
	DartAPIKeyPath string
	FetchWorkers   int
	DartRatePerSec int
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present, so local runs don't need exported vars.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:           getEnv("PORT", "8080"),
		DBPath:         getEnv("DB_PATH", "divtrack.db"),
		DartAPIKeyPath: getEnv("DART_API_KEY_PATH", "dart_api_key"),
		FetchWorkers:   getEnvInt("FETCH_WORKERS", 5),
		DartRatePerSec: getEnvInt("DART_RATE_PER_SEC", 5),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}

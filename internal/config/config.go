package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port               string
	AllowedOrigin      string
	ShopAPIBaseURL     string
	ShopAPITimeoutSecs int
	TerminalName       string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	SnapshotTTLSeconds int
	IdentityTTLSeconds int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	apiTimeout, err := strconv.Atoi(getEnv("SHOP_API_TIMEOUT_SECONDS", "15"))
	if err != nil || apiTimeout < 1 {
		apiTimeout = 15
	}
	snapshotTTL, err := strconv.Atoi(getEnv("SNAPSHOT_TTL_SECONDS", "300"))
	if err != nil || snapshotTTL < 1 {
		snapshotTTL = 300
	}
	identityTTL, err := strconv.Atoi(getEnv("IDENTITY_TTL_SECONDS", "300"))
	if err != nil || identityTTL < 1 {
		identityTTL = 300
	}

	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		AllowedOrigin:      getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		ShopAPIBaseURL:     strings.TrimRight(getEnv("SHOP_API_BASE_URL", "http://localhost:8000"), "/"),
		ShopAPITimeoutSecs: apiTimeout,
		TerminalName:       getEnv("TERMINAL_NAME", "caja-1"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            redisDB,
		SnapshotTTLSeconds: snapshotTTL,
		IdentityTTLSeconds: identityTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the service.
type Config struct {
	Port      string
	RunLocal  bool
	LogLevel  string
	AWSRegion string

	CatsTable        string
	VisitsTable      string
	TreatsTable      string
	LeaderboardTable string
	TokensTable      string
	CommentsTable    string

	ReconcileQueueURL string
	MetricsNamespace  string
	RedisURL          string

	TokenTTL          time.Duration
	CommentMaxLength  int
	LeaderboardMaxN   int
	ViewportPageSize  int
	LeaderboardCacheTTL time.Duration
}

// Load reads configuration from environment variables, with a .env file
// picked up when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:      getEnv("PORT", "8080"),
		RunLocal:  getEnv("RUN_LOCAL", "") == "true",
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		AWSRegion: getEnv("AWS_REGION", "us-east-1"),

		CatsTable:        getEnv("CATS_TABLE", "catmap-cats"),
		VisitsTable:      getEnv("VISITS_TABLE", "catmap-visits"),
		TreatsTable:      getEnv("TREATS_TABLE", "catmap-treats"),
		LeaderboardTable: getEnv("LEADERBOARD_TABLE", "catmap-leaderboard"),
		TokensTable:      getEnv("TOKENS_TABLE", "catmap-tokens"),
		CommentsTable:    getEnv("COMMENTS_TABLE", "catmap-comments"),

		ReconcileQueueURL: getEnv("RECONCILE_QUEUE_URL", ""),
		MetricsNamespace:  getEnv("METRICS_NAMESPACE", "CatMap"),
		RedisURL:          getEnv("REDIS_URL", ""),

		TokenTTL:            getDuration("TOKEN_TTL_SECONDS", 120) * time.Second,
		CommentMaxLength:    getInt("COMMENT_MAX_LENGTH", 500),
		LeaderboardMaxN:     getInt("LEADERBOARD_MAX_N", 100),
		ViewportPageSize:    getInt("VIEWPORT_PAGE_SIZE", 50),
		LeaderboardCacheTTL: getDuration("LEADERBOARD_CACHE_TTL_SECONDS", 30) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallbackSeconds int) time.Duration {
	return time.Duration(getInt(key, fallbackSeconds))
}

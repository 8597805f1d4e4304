package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr       string
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	CORSOrigin string

	// Content store
	ContentMode  string // "github" or "local"
	GitHubAPI    string
	GitHubOwner  string
	GitHubRepo   string
	DataPath     string
	RawBaseURL   string
	SyncToken    string
	LocalRepoDir string

	// Operator config document
	AdminConfigPath string

	// Optional backends
	RedisURL       string
	MeiliURL       string
	MeiliMasterKey string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// AdminConfig is the operator-facing configuration document: the static
// user list, the Google sign-in allow-list, and an optional embedded
// sync token.
type AdminConfig struct {
	Users          []AdminUser `json:"users"`
	AllowedEmails  []string    `json:"allowed_emails"`
	GoogleClientID string      `json:"google_client_id"`
	GitHubToken    string      `json:"github_token"`
}

type AdminUser struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:       getenv("API_ADDR", ":8790"),
		JWTSecret:  getenv("MODQUEUE_JWT_SECRET", "modqueue-dev-secret"),
		AccessTTL:  time.Duration(getenvInt("MODQUEUE_ACCESS_TTL_SECONDS", 900)) * time.Second,
		RefreshTTL: time.Duration(getenvInt("MODQUEUE_REFRESH_TTL_SECONDS", 2592000)) * time.Second,
		CORSOrigin: getenv("MODQUEUE_CORS_ORIGIN", "*"),

		ContentMode:  getenv("MODQUEUE_CONTENT_MODE", "github"),
		GitHubAPI:    getenv("GITHUB_API_BASE", "https://api.github.com"),
		GitHubOwner:  getenv("GITHUB_OWNER", ""),
		GitHubRepo:   getenv("GITHUB_REPO", ""),
		DataPath:     getenv("MODQUEUE_DATA_PATH", "data"),
		RawBaseURL:   getenv("MODQUEUE_RAW_BASE_URL", ""),
		SyncToken:    getenv("MODQUEUE_SYNC_TOKEN", ""),
		LocalRepoDir: getenv("MODQUEUE_LOCAL_REPO_DIR", "./data/content"),

		AdminConfigPath: getenv("MODQUEUE_ADMIN_CONFIG", "./config.json"),

		RedisURL:       getenv("REDIS_URL", ""),
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "modqueue-media"),
		MinioUseSSL:    getenv("MINIO_USE_SSL", "false") == "true",
	}
}

// LoadAdminConfig reads the operator config document. A missing file is
// not an error: the console then has no password users and no Google
// allow-list, which still leaves GitHub-token sign-in usable.
func LoadAdminConfig(path string) (AdminConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return AdminConfig{}, nil
		}
		return AdminConfig{}, fmt.Errorf("read admin config: %w", err)
	}
	var cfg AdminConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AdminConfig{}, fmt.Errorf("parse admin config: %w", err)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

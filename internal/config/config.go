// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Remote post store
	BaseURL string

	// Identity
	FirebaseAPIKey  string
	IdentityBaseURL string

	// Tracking
	TrackURL           string
	DatabaseURL        string
	TrackRetentionDays int
	CleanupInterval    time.Duration

	// HTTP client
	HTTPTimeout time.Duration

	// Server
	ServerPort string
	PublicURL  string

	// Logging
	LogLevel string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// CLI client
	SessionPath string

	// Site
	Site Site
}

// Site はページのheadに出力するサイト設定。
// SITE_CONFIG_PATH で指定したYAMLファイルから上書きできる。
type Site struct {
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	LoadingColor string `yaml:"loading_color"`
	Favicon      string `yaml:"favicon"`
}

// DefaultSite はYAMLが指定されない場合のサイト設定。
func DefaultSite() Site {
	return Site{
		Title:        "WD Blog",
		LoadingColor: "#fff",
		Favicon:      "/favicon.ico",
	}
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.FirebaseAPIKey = os.Getenv("FIREBASE_API_KEY")
	if cfg.FirebaseAPIKey == "" {
		missing = append(missing, "FIREBASE_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.IdentityBaseURL = getEnvString("IDENTITY_BASE_URL", "https://identitytoolkit.googleapis.com/v1")
	cfg.ServerPort = getEnvString("SERVER_PORT", "3000")
	cfg.PublicURL = getEnvString("PUBLIC_URL", "http://localhost:"+cfg.ServerPort)
	cfg.TrackURL = getEnvString("TRACK_URL", "http://localhost:"+cfg.ServerPort+"/api/track-data")
	cfg.DatabaseURL = getEnvString("DATABASE_URL", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.TrackRetentionDays = getEnvInt("TRACK_RETENTION_DAYS", 30)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 10*time.Second)
	cfg.CookieSecure = strings.HasPrefix(cfg.PublicURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.PublicURL)
	cfg.SessionPath = getEnvString("SESSION_PATH", defaultSessionPath())

	site, err := LoadSite(os.Getenv("SITE_CONFIG_PATH"))
	if err != nil {
		return nil, err
	}
	cfg.Site = site

	return cfg, nil
}

// LoadSite はYAMLファイルからサイト設定を読み込む。
// pathが空の場合はDefaultSiteを返す。ファイルに書かれていない項目はデフォルト値のまま残る。
func LoadSite(path string) (Site, error) {
	site := DefaultSite()
	if path == "" {
		return site, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Site{}, fmt.Errorf("failed to read site config: %w", err)
	}
	if err := yaml.Unmarshal(data, &site); err != nil {
		return Site{}, fmt.Errorf("failed to parse site config: %w", err)
	}
	if site.Title == "" {
		return Site{}, errors.New("site config: title must not be empty")
	}
	return site, nil
}

// defaultSessionPath はCLIクライアントのセッションファイルの既定パス。
func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "wdblog", "session.json")
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// getEnvDuration は0以下の値も不正としてデフォルト値に戻す。
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

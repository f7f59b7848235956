package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dfryer1193/css3blog/shared/db/sqlite"
	"github.com/joho/godotenv"
)

const (
	StorageDisk = "disk"
	StorageS3   = "s3"

	RendererGithub = "github"
	RendererLocal  = "local"
)

type Config struct {
	Port      int
	SQLite    *sqlite.SQLiteConfig
	MediaRoot string

	StorageBackend string
	S3Bucket       string

	Renderer      string
	RenderBaseURL string
	RenderTimeout time.Duration
	GithubToken   string
	SiteURL       string

	LogLevel  string
	LogPretty bool
}

// Load reads the configuration from the environment. Values in a .env file in the
// working directory are used for variables that are not already set.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT %q", os.Getenv("PORT"))
	}

	timeout, err := time.ParseDuration(getEnv("RENDER_TIMEOUT", "30s"))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("invalid RENDER_TIMEOUT %q", os.Getenv("RENDER_TIMEOUT"))
	}

	pretty, err := strconv.ParseBool(getEnv("LOG_PRETTY", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_PRETTY %q: %w", os.Getenv("LOG_PRETTY"), err)
	}

	cfg := &Config{
		Port:           port,
		SQLite:         sqlite.NewSQLiteConfig(),
		MediaRoot:      getEnv("MEDIA_ROOT", "./media"),
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageDisk)),
		S3Bucket:       os.Getenv("S3_BUCKET"),
		Renderer:       strings.ToLower(getEnv("RENDERER", RendererGithub)),
		RenderBaseURL:  getEnv("RENDER_BASE_URL", "https://api.github.com/"),
		RenderTimeout:  timeout,
		GithubToken:    os.Getenv("GITHUB_TOKEN"),
		SiteURL:        os.Getenv("SITE_URL"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogPretty:      pretty,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case StorageDisk:
	case StorageS3:
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required when STORAGE_BACKEND is s3")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.StorageBackend)
	}

	switch c.Renderer {
	case RendererGithub, RendererLocal:
	default:
		return fmt.Errorf("unsupported RENDERER %q", c.Renderer)
	}

	return nil
}

// Addr is the listen address of the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds everything the server process needs at startup
type Config struct {
	HTTPAddr           string
	DatabaseURL        string
	FrontendURL        string
	UploadsDir         string
	DedupMode          string
	LogLevel           string
	LogFormat          string
	CorsAllowOrigins   []string
	ShutdownTimeout    time.Duration
	SignalingPongWait  time.Duration
	MaxUploadSizeBytes int64
}

type fileConfig struct {
	HTTPAddr           string   `toml:"http_addr"`
	DatabaseURL        string   `toml:"db_url"`
	FrontendURL        string   `toml:"frontend_url"`
	UploadsDir         string   `toml:"uploads_dir"`
	DedupMode          string   `toml:"dedup_mode"`
	LogLevel           string   `toml:"log_level"`
	LogFormat          string   `toml:"log_format"`
	CorsAllowOrigins   []string `toml:"cors_allow_origins"`
	ShutdownTimeoutSec int      `toml:"shutdown_timeout_seconds"`
}

// Load reads the .env file, an optional TOML file named by CONFIG_FILE, and
// finally the process environment. Later sources win.
func Load() (*Config, error) {

	// Load the .env file. A missing file is normal in production
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("no .env file loaded")
	}

	cfg := &Config{
		HTTPAddr:           ":8080",
		DatabaseURL:        "sqlite://meetsession.db",
		UploadsDir:         "public/uploads/meetings",
		DedupMode:          "atomic",
		LogLevel:           "info",
		LogFormat:          "text",
		ShutdownTimeout:    10 * time.Second,
		SignalingPongWait:  60 * time.Second,
		MaxUploadSizeBytes: 10 * 1024 * 1024,
	}

	// Apply the TOML file, if one was named
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, err
		}
		applyFile(cfg, &fc)
	}

	applyEnvOverrides(cfg)
	return cfg, nil

}

func applyFile(cfg *Config, fc *fileConfig) {
	if fc.HTTPAddr != "" {
		cfg.HTTPAddr = fc.HTTPAddr
	}
	if fc.DatabaseURL != "" {
		cfg.DatabaseURL = fc.DatabaseURL
	}
	if fc.FrontendURL != "" {
		cfg.FrontendURL = fc.FrontendURL
	}
	if fc.UploadsDir != "" {
		cfg.UploadsDir = fc.UploadsDir
	}
	if fc.DedupMode != "" {
		cfg.DedupMode = fc.DedupMode
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		cfg.LogFormat = fc.LogFormat
	}
	if len(fc.CorsAllowOrigins) > 0 {
		cfg.CorsAllowOrigins = fc.CorsAllowOrigins
	}
	if fc.ShutdownTimeoutSec > 0 {
		cfg.ShutdownTimeout = time.Duration(fc.ShutdownTimeoutSec) * time.Second
	}
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.DatabaseURL, "DB_URL")
	setString(&cfg.FrontendURL, "FRONTEND_URL")
	setString(&cfg.UploadsDir, "UPLOADS_DIR")
	setString(&cfg.DedupMode, "DEDUP_MODE")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")
	if _, ok := os.LookupEnv("CORS_ALLOW_ORIGINS"); ok {
		cfg.CorsAllowOrigins = GetAllowedOrigins()
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// GetAllowedOrigins gets the slice of allowed CORS origins
func GetAllowedOrigins() []string {

	// Get the list of origins allowed
	env, ok := os.LookupEnv("CORS_ALLOW_ORIGINS")
	if !ok {
		return []string{}
	}

	// Split up the env value
	origins := []string{}
	for _, originRaw := range strings.Split(env, ",") {
		origin := strings.TrimSpace(originRaw)
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}

	// Return the origins slice
	return origins

}

// ConfigureLogging applies the log level and format to the standard logrus logger
func (c *Config) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

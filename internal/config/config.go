package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	AllowOrigins     string
	DatabaseURL      string
	RedisURL         string
	JWTSecret        string
	NATSURL          string
	AuditSubject     string
	UploadDir        string
	UploadMaxSizeMB  int
	UploadTokenTTL   time.Duration
	UploadRateLimit  int
	Slotting         string
	UGELDefaultGrade string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("LIBRETA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Libreta API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.allow_origins", "*")
	v.SetDefault("audit.subject", "libreta.audit")
	v.SetDefault("upload.dir", "./uploads")
	v.SetDefault("upload.max_size_mb", 10)
	v.SetDefault("upload.token_ttl", "24h")
	v.SetDefault("upload.rate_limit", 10)
	v.SetDefault("consolidation.slotting", "discovery")
	v.SetDefault("ugel.default_grade", "1")

	ttl, err := time.ParseDuration(v.GetString("upload.token_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid upload token ttl: %w", err)
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		AllowOrigins:     v.GetString("app.allow_origins"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		JWTSecret:        v.GetString("jwt.secret"),
		NATSURL:          v.GetString("nats.url"),
		AuditSubject:     v.GetString("audit.subject"),
		UploadDir:        v.GetString("upload.dir"),
		UploadMaxSizeMB:  v.GetInt("upload.max_size_mb"),
		UploadTokenTTL:   ttl,
		UploadRateLimit:  v.GetInt("upload.rate_limit"),
		Slotting:         strings.ToLower(strings.TrimSpace(v.GetString("consolidation.slotting"))),
		UGELDefaultGrade: strings.TrimSpace(v.GetString("ugel.default_grade")),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 10
	}

	if cfg.UploadTokenTTL <= 0 {
		cfg.UploadTokenTTL = 24 * time.Hour
	}

	switch cfg.Slotting {
	case "discovery", "identity":
	default:
		return Config{}, fmt.Errorf("invalid consolidation slotting %q", cfg.Slotting)
	}

	return cfg, nil
}

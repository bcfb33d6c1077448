package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ORBSIM_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ORBSIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject credentials at deploy time without touching the TOML
// file; strategy thresholds deliberately stay file-only so a run's parameters
// are fully described by its config file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ORBSIM_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ORBSIM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ORBSIM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ORBSIM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ORBSIM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ORBSIM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ORBSIM_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "ORBSIM_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ORBSIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ORBSIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ORBSIM_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "ORBSIM_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ORBSIM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ORBSIM_S3_REGION")
	setStr(&cfg.S3.Bucket, "ORBSIM_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ORBSIM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ORBSIM_S3_SECRET_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ORBSIM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ORBSIM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ORBSIM_NOTIFY_DISCORD_WEBHOOK_URL")

	// ── Feed ──
	setStr(&cfg.Feed.Dir, "ORBSIM_FEED_DIR")

	// ── Top-level ──
	setStr(&cfg.Mode, "ORBSIM_MODE")
	setStr(&cfg.LogLevel, "ORBSIM_LOG_LEVEL")
	setStr(&cfg.Engine.RunKey, "ORBSIM_RUN_KEY")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

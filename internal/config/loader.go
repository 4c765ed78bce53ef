package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/rpattn/chronicle/internal/db"
)

// Config carries everything the binary needs at startup.
type Config struct {
	Database db.Config
	// LogMode selects the logger profile ("dev" or "prod").
	LogMode string
	// DefaultActor labels writes when the caller supplies no identity.
	DefaultActor string
}

// Load reads config.yaml from configPath (optional) with environment
// overrides prefixed CHRONICLE_ (e.g. CHRONICLE_DATABASE_HOST).
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database:     db.DefaultConfig(),
		LogMode:      "dev",
		DefaultActor: "system",
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("CHRONICLE")
	v.AutomaticEnv()

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("database.max_conns")
	v.BindEnv("log.mode")
	v.BindEnv("actor.default")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults plus env vars apply.
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.max_conns") {
		cfg.Database.MaxConns = int32(v.GetInt("database.max_conns"))
	}
	if v.IsSet("log.mode") {
		cfg.LogMode = v.GetString("log.mode")
	}
	if v.IsSet("actor.default") {
		cfg.DefaultActor = v.GetString("actor.default")
	}

	return cfg, nil
}

package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store driver values
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type AppConfig struct {
	Port        string   `mapstructure:"port"`
	GinMode     string   `mapstructure:"gin_mode"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	SeedRoles   bool     `mapstructure:"seed_roles"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the PostgreSQL connection string
func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Name + "?sslmode=" + d.SSLMode
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envBindings maps config keys onto the flat environment variable names used by deployments
var envBindings = map[string]string{
	"app.port":          "PORT",
	"app.gin_mode":      "GIN_MODE",
	"app.cors_origins":  "CORS_ORIGINS",
	"app.seed_roles":    "SEED_ROLES",
	"database.driver":   "STORE_DRIVER",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.name":     "DB_NAME",
	"database.sslmode":  "DB_SSLMODE",
	"auth.jwt_secret":   "JWT_SECRET",
	"logging.level":     "LOG_LEVEL",
	"logging.format":    "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.gin_mode", "debug")
	v.SetDefault("app.cors_origins", "http://localhost:5173,http://127.0.0.1:5173,http://localhost:5174")
	v.SetDefault("app.seed_roles", true)
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads envFile (if present) into the process environment, then resolves
// every key from the environment with defaults.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// Missing file is fine, deployments inject env directly
		_ = godotenv.Load(envFile)
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.App.CORSOrigins = splitList(v.GetString("app.cors_origins"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the server cannot start without
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q (expected %s or %s)", c.Database.Driver, DriverPostgres, DriverMemory)
	}

	if c.Auth.JWTSecret == "" {
		if c.App.GinMode == "release" {
			return fmt.Errorf("JWT_SECRET environment variable is required in release mode")
		}
		c.Auth.JWTSecret = "default_super_secret_key" // Development fallback only
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Store   StoreConfig   `toml:"store"`
	Lock    LockConfig    `toml:"lock"`
	Session SessionConfig `toml:"session"`
	Bridge  BridgeConfig  `toml:"bridge"`
}

type ServerConfig struct {
	Env      string `toml:"env" validate:"required,oneof=development test production"`
	LogLevel string `toml:"log_level" validate:"required,oneof=debug info warn error"`
	// Namespace prefixes every credential-store key so one store can hold
	// several identities.
	Namespace string `toml:"namespace" validate:"required,max=64"`
}

type StoreConfig struct {
	Driver     string         `toml:"driver" validate:"required,oneof=memory sqlite postgres"`
	SQLitePath string         `toml:"sqlite_path" validate:"required_if=Driver sqlite"`
	Database   DatabaseConfig `toml:"database"`
}

type DatabaseConfig struct {
	Host              string        `toml:"host"`
	Port              int           `toml:"port"`
	User              string        `toml:"user"`
	Password          string        `toml:"-"`
	Name              string        `toml:"name"`
	SSLMode           string        `toml:"sslmode"`
	MaxConns          int32         `toml:"max_conns"`
	MinConns          int32         `toml:"min_conns"`
	MaxConnLifetime   time.Duration `toml:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `toml:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `toml:"health_check_period"`
}

type LockConfig struct {
	MaxAttempts       int           `toml:"max_attempts" validate:"min=1,max=10"`
	LockoutWindow     time.Duration `toml:"lockout_window" validate:"min=1s"`
	LockoutMultiplier float64       `toml:"lockout_multiplier" validate:"gte=1"`
	LockoutMaxWindow  time.Duration `toml:"lockout_max_window" validate:"gtefield=LockoutWindow"`
	InactivityTimeout time.Duration `toml:"inactivity_timeout" validate:"min=1s"`
	PollInterval      time.Duration `toml:"poll_interval" validate:"min=100ms"`
	PinHashCost       int           `toml:"pin_hash_cost" validate:"min=4,max=31"`
	FailureDelayMs    int           `toml:"failure_delay_ms" validate:"min=0,max=5000"`
	FailureJitterMs   int           `toml:"failure_jitter_ms" validate:"min=0,max=5000"`
}

type SessionConfig struct {
	MaxDuration time.Duration `toml:"max_duration" validate:"min=1s"`
	MaxInactive time.Duration `toml:"max_inactive" validate:"min=1s"`
	WarningLead time.Duration `toml:"warning_lead" validate:"ltfield=MaxInactive"`
	// TokenSecret enables signature checks on stored access tokens. Empty
	// means claims are read unverified.
	TokenSecret string `toml:"-"`
}

type BridgeConfig struct {
	Enabled      bool          `toml:"enabled"`
	Addr         string        `toml:"addr" validate:"required_if=Enabled true"`
	Token        string        `toml:"-"`
	RateLimit    int           `toml:"rate_limit" validate:"min=1"`
	RateWindow   time.Duration `toml:"rate_window" validate:"min=1s"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	IdleTimeout  time.Duration `toml:"idle_timeout"`
}

var validate = validator.New()

// Load reads .env and the environment, then overlays the optional TOML
// policy file named by PINGUARD_POLICY_FILE.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Env:       env,
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			Namespace: getEnv("PINGUARD_NAMESPACE", "pinguard"),
		},
		Store: StoreConfig{
			Driver:     getEnv("STORE_DRIVER", "sqlite"),
			SQLitePath: getEnv("STORE_SQLITE_PATH", "pinguard.db"),
			Database: DatabaseConfig{
				Host:              getEnv("DB_HOST", "localhost"),
				Port:              getEnvAsInt("DB_PORT", 5432),
				User:              getEnv("DB_USER", "postgres"),
				Password:          getEnv("DB_PASSWORD", ""),
				Name:              getEnv("DB_NAME", "pinguard"),
				SSLMode:           getEnv("DB_SSLMODE", "disable"),
				MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 5)),
				MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 1)),
				MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
				MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
				HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			},
		},
		Lock: LockConfig{
			MaxAttempts:       getEnvAsInt("LOCK_MAX_ATTEMPTS", 3),
			LockoutWindow:     getEnvAsDuration("LOCK_LOCKOUT_WINDOW", 30*time.Second),
			LockoutMultiplier: getEnvAsFloat("LOCK_LOCKOUT_MULTIPLIER", 1.0),
			LockoutMaxWindow:  getEnvAsDuration("LOCK_LOCKOUT_MAX_WINDOW", 30*time.Minute),
			InactivityTimeout: getEnvAsDuration("LOCK_INACTIVITY_TIMEOUT", 5*time.Minute),
			PollInterval:      getEnvAsDuration("LOCK_POLL_INTERVAL", 10*time.Second),
			PinHashCost:       getEnvAsInt("LOCK_PIN_HASH_COST", 12),
			FailureDelayMs:    getEnvAsInt("LOCK_FAILURE_DELAY_MS", 250),
			FailureJitterMs:   getEnvAsInt("LOCK_FAILURE_JITTER_MS", 100),
		},
		Session: SessionConfig{
			MaxDuration: getEnvAsDuration("SESSION_MAX_DURATION", 8*time.Hour),
			MaxInactive: getEnvAsDuration("SESSION_MAX_INACTIVE", 15*time.Minute),
			WarningLead: getEnvAsDuration("SESSION_WARNING_LEAD", 2*time.Minute),
			TokenSecret: getEnv("SESSION_TOKEN_SECRET", ""),
		},
		Bridge: BridgeConfig{
			Enabled:      getEnvAsBool("BRIDGE_ENABLED", true),
			Addr:         getEnv("BRIDGE_ADDR", "127.0.0.1:7878"),
			Token:        getEnv("BRIDGE_TOKEN", ""),
			RateLimit:    getEnvAsInt("BRIDGE_RATE_LIMIT", 120),
			RateWindow:   getEnvAsDuration("BRIDGE_RATE_WINDOW", time.Minute),
			ReadTimeout:  getEnvAsDuration("BRIDGE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("BRIDGE_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getEnvAsDuration("BRIDGE_IDLE_TIMEOUT", 60*time.Second),
		},
	}

	if path := getEnv("PINGUARD_POLICY_FILE", ""); path != "" {
		if err := applyPolicyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyPolicyFile overlays keys present in the TOML file onto cfg. Keys the
// file does not mention keep their environment values.
func applyPolicyFile(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("unknown keys in policy file %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Store.Driver == "postgres" && c.Store.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required for the postgres store")
	}
	if c.Session.WarningLead >= c.Session.MaxDuration {
		return fmt.Errorf("SESSION_WARNING_LEAD must be shorter than SESSION_MAX_DURATION")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

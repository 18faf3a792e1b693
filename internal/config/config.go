// internal/config/config.go
package conf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bartek5186/stockhub/internal/integrations/importer"
	"github.com/bartek5186/stockhub/internal/integrations/shopify"
	"github.com/joho/godotenv"
)

// Main application config, persisted as config.json in the app data dir.
type Config struct {
	AutoStart           bool                       `json:"auto_start"`
	SyncIntervalSeconds int                        `json:"sync_interval_seconds"`
	LogLevel            string                     `json:"log_level"`
	HTTP                HTTPConfig                 `json:"http"`
	Database            DatabaseConfig             `json:"database"`
	Auth                AuthConfig                 `json:"auth"`
	Events              EventsConfig               `json:"events"`
	Integrations        map[string]json.RawMessage `json:"integrations"` // name -> raw integration JSON
}

type HTTPConfig struct {
	Addr         string   `json:"addr"`
	AllowOrigins []string `json:"allow_origins"`
}

type DatabaseConfig struct {
	Driver       string `json:"driver"` // sqlite | sqlite-cgo | postgres | mysql
	DSN          string `json:"dsn"`    // empty for sqlite = <app dir>/stockhub.db
	MaxOpenConns int    `json:"max_open_conns"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
}

type EventsConfig struct {
	Driver        string   `json:"driver"` // "" (in-process only) | kafka | redis
	KafkaBrokers  []string `json:"kafka_brokers"`
	KafkaTopic    string   `json:"kafka_topic"`
	RedisAddr     string   `json:"redis_addr"`
	RedisPassword string   `json:"redis_password"`
	RedisDB       int      `json:"redis_db"`
	RedisChannel  string   `json:"redis_channel"`
}

func Default() *Config {
	rawShop, _ := json.Marshal(shopify.Config{
		BaseURL:         "https://us-central1-example.cloudfunctions.net/api",
		ServiceAccount:  "stockhub-sync",
		TokenSecret:     "change-me",
		TokenTTLMinutes: 15,
		PollSec:         30,
		BatchSize:       20,
		MaxAttempts:     5,
	})
	rawImp, _ := json.Marshal(importer.Config{
		WatchDir:   "~/stockhub/imports",
		PollSec:    30,
		FilePrefix: "stock_",
	})

	return &Config{
		AutoStart:           false,
		SyncIntervalSeconds: 60,
		LogLevel:            "info",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			AllowOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			MaxOpenConns: 1,
		},
		Auth: AuthConfig{
			JWTSecret: "change-me",
			Issuer:    "stockhub",
		},
		Events: EventsConfig{
			KafkaTopic:   "stock.events",
			RedisChannel: "stock-events",
		},
		Integrations: map[string]json.RawMessage{
			"shopify":  rawShop,
			"importer": rawImp,
		},
	}
}

// LoadOrCreate reads the config file, writing defaults on first run.
// The bool result reports whether the file was just created.
func LoadOrCreate(path string) (*Config, bool, error) {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(path, cfg); err != nil {
				return nil, false, fmt.Errorf("write default config: %w", err)
			}
			return cfg, true, nil
		}
		return nil, false, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, false, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Integrations == nil {
		cfg.Integrations = map[string]json.RawMessage{}
	}
	return &cfg, false, nil
}

func Save(path string, cfg *Config) error {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

// ApplyEnv loads an optional .env file and lets STOCKHUB_* variables
// override values from config.json.
func (c *Config) ApplyEnv(envFile string) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	setStr(&c.HTTP.Addr, "STOCKHUB_HTTP_ADDR")
	setStr(&c.Database.Driver, "STOCKHUB_DB_DRIVER")
	setStr(&c.Database.DSN, "STOCKHUB_DB_DSN")
	setInt(&c.Database.MaxOpenConns, "STOCKHUB_DB_MAX_OPEN_CONNS")
	setStr(&c.Auth.JWTSecret, "STOCKHUB_JWT_SECRET")
	setStr(&c.LogLevel, "STOCKHUB_LOG_LEVEL")
	setStr(&c.Events.Driver, "STOCKHUB_EVENTS_DRIVER")
	setStr(&c.Events.KafkaTopic, "STOCKHUB_KAFKA_TOPIC")
	setStr(&c.Events.RedisAddr, "STOCKHUB_REDIS_ADDR")
	setStr(&c.Events.RedisPassword, "STOCKHUB_REDIS_PASSWORD")
	setInt(&c.Events.RedisDB, "STOCKHUB_REDIS_DB")
	if v, ok := os.LookupEnv("STOCKHUB_KAFKA_BROKERS"); ok {
		c.Events.KafkaBrokers = splitAndTrim(v)
	}
	if v, ok := os.LookupEnv("STOCKHUB_AUTO_START"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AutoStart = b
		}
	}
}

// UnmarshalIntegration decodes the named integration block into v.
func (c *Config) UnmarshalIntegration(name string, v any) error {
	raw, ok := c.Integrations[name]
	if !ok {
		return fmt.Errorf("integration %q missing in config", name)
	}
	return json.Unmarshal(raw, v)
}

func setStr(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if pt := strings.TrimSpace(p); pt != "" {
			parts = append(parts, pt)
		}
	}
	return parts
}

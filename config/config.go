// Package config loads the service configuration from an optional YAML file
// and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Config is the root configuration document.
type Config struct {
	// Endpoint is this node's own externally advertised dataspace endpoint.
	Endpoint        string        `yaml:"endpoint" validate:"required,url"`
	HTTP            HTTP          `yaml:"http"`
	Database        Database      `yaml:"database"`
	Store           Store         `yaml:"store"`
	ContractService RemoteService `yaml:"contract_service"`
	CatalogService  RemoteService `yaml:"catalog_service"`
	Replication     Replication   `yaml:"replication"`
	NATS            NATS          `yaml:"nats"`
	Log             Log           `yaml:"log"`
}

type HTTP struct {
	Addr string `yaml:"addr" validate:"required"`
}

type Database struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns" validate:"gte=0"`
	MinConns int32  `yaml:"min_conns" validate:"gte=0"`
}

type Store struct {
	Driver     string `yaml:"driver" validate:"oneof=postgres badger"`
	BadgerPath string `yaml:"badger_path"`
}

// RemoteService addresses the contract or catalog service.
type RemoteService struct {
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// Replication configures calls to counterpart participants.
type Replication struct {
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl" validate:"gte=0"`
}

type NATS struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type Log struct {
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Development bool   `yaml:"development"`
}

// Load reads path (when non-empty), applies environment overrides and defaults, then validates.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints plus cross-field rules.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config: invalid fields: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("config: validate: %w", err)
	}

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("config: database.url is required for the postgres store")
		}
	case DriverBadger:
		if c.Store.BadgerPath == "" {
			return fmt.Errorf("config: store.badger_path is required for the badger store")
		}
	}
	if c.Database.MinConns > c.Database.MaxConns && c.Database.MaxConns > 0 {
		return fmt.Errorf("config: database.min_conns exceeds max_conns")
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Endpoint, "PDC_ENDPOINT")
	set(&c.HTTP.Addr, "HTTP_ADDR")
	set(&c.Database.URL, "DATABASE_URL")
	set(&c.Store.Driver, "STORE_DRIVER")
	set(&c.Store.BadgerPath, "BADGER_PATH")
	set(&c.ContractService.BaseURL, "CONTRACT_SERVICE_URL")
	set(&c.CatalogService.BaseURL, "CATALOG_SERVICE_URL")
	set(&c.Replication.Secret, "REPLICATION_SECRET")
	set(&c.NATS.URL, "NATS_URL")
	set(&c.Log.Level, "LOG_LEVEL")
}

func (c *Config) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":3000"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverPostgres
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = 1
	}
	if c.ContractService.Timeout == 0 {
		c.ContractService.Timeout = 10 * time.Second
	}
	if c.CatalogService.Timeout == 0 {
		c.CatalogService.Timeout = 10 * time.Second
	}
	if c.Replication.Timeout == 0 {
		c.Replication.Timeout = 10 * time.Second
	}
	if c.Replication.TokenTTL == 0 {
		c.Replication.TokenTTL = 5 * time.Minute
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "exchanges.status_changed"
	}
}

// Package config loads server configuration from an optional YAML file, an
// optional .env file and the environment, in increasing precedence. Command
// line flags are applied on top by cmd/server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/and161185/zerobase/internal/crypto"
)

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type GRPC struct {
	// HealthAddr is the gRPC health listener address; empty disables it.
	HealthAddr string `yaml:"health_addr"`
}

type Database struct {
	// URL is the control-plane DSN; tenant DSNs are derived from it.
	URL string `yaml:"url"`
}

type Tenant struct {
	MaxPools int   `yaml:"max_pools"`
	MaxConns int32 `yaml:"max_conns"`
}

type Storage struct {
	Path           string `yaml:"path"`
	MaxFileMB      int64  `yaml:"max_file_mb"`
	DefaultQuotaMB int64  `yaml:"default_quota_mb"`
}

type Auth struct {
	JWTSecret        string        `yaml:"jwt_secret"`
	DefaultExpiry    string        `yaml:"default_expiry"`
	GoogleClientID   string        `yaml:"google_client_id"`
	LoginWindow      time.Duration `yaml:"login_window"`
	LoginMaxFailures int           `yaml:"login_max_failures"`
	LoginBlockFor    time.Duration `yaml:"login_block_for"`
}

type Access struct {
	RequireKeyWithoutOrigin bool `yaml:"require_key_without_origin"`
}

type CORS struct {
	DashboardOrigins []string `yaml:"dashboard_origins"`
}

type Log struct {
	Development bool `yaml:"development"`
}

// Config is the full server configuration.
type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Database Database `yaml:"database"`
	Tenant   Tenant   `yaml:"tenant"`
	Storage  Storage  `yaml:"storage"`
	Auth     Auth     `yaml:"auth"`
	Access   Access   `yaml:"access"`
	CORS     CORS     `yaml:"cors"`
	Log      Log      `yaml:"log"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		HTTP:    HTTP{Addr: ":5000", ShutdownTimeout: 5 * time.Second},
		Tenant:  Tenant{MaxPools: 64, MaxConns: 4},
		Storage: Storage{Path: "./storage", MaxFileMB: 50, DefaultQuotaMB: 1024},
		Auth: Auth{
			DefaultExpiry:    "365d",
			LoginWindow:      15 * time.Minute,
			LoginMaxFailures: 5,
			LoginBlockFor:    15 * time.Minute,
		},
		CORS: CORS{DashboardOrigins: []string{"http://localhost:3000", "http://localhost:3002"}},
	}
}

// Load builds a Config from defaults, then yamlPath (skipped when empty), then
// envFile (skipped when missing), then the process environment.
func Load(yamlPath, envFile string) (Config, error) {
	cfg := Default()
	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", yamlPath, err)
		}
	}
	if envFile != "" {
		// godotenv never overrides variables already set in the environment
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type binding struct {
	names []string
	set   func(string) error
}

func str(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func integer[T int | int32 | int64](dst *T) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*dst = T(n)
		return nil
	}
}

func boolean(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func duration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func list(dst *[]string) func(string) error {
	return func(v string) error {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst = out
		return nil
	}
}

// bindings lists the variables read for each key. Later names win, so the
// ZEROBASE_* form overrides the short legacy names.
func (c *Config) bindings() []binding {
	return []binding{
		{[]string{"PORT"}, func(v string) error { c.HTTP.Addr = ":" + v; return nil }},
		{[]string{"ZEROBASE_HTTP_ADDR"}, str(&c.HTTP.Addr)},
		{[]string{"ZEROBASE_HTTP_SHUTDOWN_TIMEOUT"}, duration(&c.HTTP.ShutdownTimeout)},
		{[]string{"ZEROBASE_GRPC_HEALTH_ADDR"}, str(&c.GRPC.HealthAddr)},
		{[]string{"DATABASE_URL", "ZEROBASE_DATABASE_URL"}, str(&c.Database.URL)},
		{[]string{"ZEROBASE_TENANT_MAX_POOLS"}, integer(&c.Tenant.MaxPools)},
		{[]string{"ZEROBASE_TENANT_MAX_CONNS"}, integer(&c.Tenant.MaxConns)},
		{[]string{"STORAGE_PATH", "ZEROBASE_STORAGE_PATH"}, str(&c.Storage.Path)},
		{[]string{"ZEROBASE_STORAGE_MAX_FILE_MB"}, integer(&c.Storage.MaxFileMB)},
		{[]string{"ZEROBASE_STORAGE_DEFAULT_QUOTA_MB"}, integer(&c.Storage.DefaultQuotaMB)},
		{[]string{"JWT_SECRET", "ZEROBASE_AUTH_JWT_SECRET"}, str(&c.Auth.JWTSecret)},
		{[]string{"ZEROBASE_AUTH_DEFAULT_EXPIRY"}, str(&c.Auth.DefaultExpiry)},
		{[]string{"GOOGLE_CLIENT_ID", "ZEROBASE_AUTH_GOOGLE_CLIENT_ID"}, str(&c.Auth.GoogleClientID)},
		{[]string{"ZEROBASE_AUTH_LOGIN_WINDOW"}, duration(&c.Auth.LoginWindow)},
		{[]string{"ZEROBASE_AUTH_LOGIN_MAX_FAILURES"}, integer(&c.Auth.LoginMaxFailures)},
		{[]string{"ZEROBASE_AUTH_LOGIN_BLOCK_FOR"}, duration(&c.Auth.LoginBlockFor)},
		{[]string{"ZEROBASE_ACCESS_REQUIRE_KEY_WITHOUT_ORIGIN"}, boolean(&c.Access.RequireKeyWithoutOrigin)},
		{[]string{"ZEROBASE_CORS_DASHBOARD_ORIGINS"}, list(&c.CORS.DashboardOrigins)},
		{[]string{"ZEROBASE_LOG_DEVELOPMENT"}, boolean(&c.Log.Development)},
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, b := range c.bindings() {
		for _, name := range b.names {
			v, ok := lookup(name)
			if !ok || v == "" {
				continue
			}
			if err := b.set(v); err != nil {
				return fmt.Errorf("env %s: %w", name, err)
			}
		}
	}
	return nil
}

// Validate reports the first missing or malformed setting.
func (c Config) Validate() error {
	switch {
	case c.Database.URL == "":
		return errors.New("config: database.url (DATABASE_URL) is required")
	case c.Auth.JWTSecret == "":
		return errors.New("config: auth.jwt_secret (JWT_SECRET) is required")
	case c.HTTP.Addr == "":
		return errors.New("config: http.addr is required")
	case c.Storage.Path == "":
		return errors.New("config: storage.path is required")
	case c.Storage.MaxFileMB <= 0 || c.Storage.DefaultQuotaMB <= 0:
		return errors.New("config: storage sizes must be positive")
	case c.Tenant.MaxPools <= 0 || c.Tenant.MaxConns <= 0:
		return errors.New("config: tenant pool limits must be positive")
	case c.Auth.LoginMaxFailures <= 0:
		return errors.New("config: auth.login_max_failures must be positive")
	}
	if _, err := crypto.ParseExpiry(c.Auth.DefaultExpiry); err != nil {
		return fmt.Errorf("config: auth.default_expiry: %w", err)
	}
	return nil
}

// DefaultExpiry parses auth.default_expiry. Call Validate first.
func (c Config) DefaultExpiry() time.Duration {
	d, _ := crypto.ParseExpiry(c.Auth.DefaultExpiry)
	return d
}

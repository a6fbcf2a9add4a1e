// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/routeforge/routeforge/core/registry"
	"github.com/routeforge/routeforge/core/scanner"
	"github.com/routeforge/routeforge/domain/permission"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Scan     ScanConfig      `yaml:"scan"`
	Registry registry.Config `yaml:"registry"`
	RBAC     RBACConfig      `yaml:"rbac"`
	Auth     AuthConfig      `yaml:"auth"`
	Audit    AuditConfig     `yaml:"audit"`
	Logging  LoggingConfig   `yaml:"logging"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	OpenAPI  OpenAPIConfig   `yaml:"openapi"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ScanConfig configures convention scanning. The embedded scanner
// options keep their own defaults; the fields here control the
// pipeline around the scan.
type ScanConfig struct {
	scanner.Config `yaml:",inline"`

	// CacheTTL bounds scan result staleness. Zero disables caching.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Watch enables filesystem watching for hot reload.
	Watch bool `yaml:"watch"`

	// Debounce coalesces bursts of file events into one rescan.
	Debounce time.Duration `yaml:"debounce"`
}

// RBACConfig configures access-control evaluation.
type RBACConfig struct {
	Enabled           bool          `yaml:"enabled"`
	SuperAdminRoles   []string      `yaml:"super_admin_roles"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	DerivePermissions bool          `yaml:"derive_permissions"`
	DefaultScope      string        `yaml:"default_scope"`
	Rules             []RuleConfig  `yaml:"rules"`
}

// RuleConfig configures one custom permission-derivation rule.
type RuleConfig struct {
	Name     string   `yaml:"name"`
	Pattern  string   `yaml:"pattern"`
	Methods  []string `yaml:"methods"`
	Resource string   `yaml:"resource"`
	Action   string   `yaml:"action"`
	Scope    string   `yaml:"scope"`
	Priority int      `yaml:"priority"`
	Override bool     `yaml:"override"`
}

// PermissionRules converts the configured rules into the derivation
// engine's form.
func (c RBACConfig) PermissionRules() []permission.Rule {
	rules := make([]permission.Rule, 0, len(c.Rules))
	for _, rc := range c.Rules {
		rules = append(rules, permission.Rule{
			Name:    rc.Name,
			Pattern: rc.Pattern,
			Methods: rc.Methods,
			Template: permission.Template{
				Resource: rc.Resource,
				Action:   rc.Action,
				Scope:    rc.Scope,
			},
			Priority: rc.Priority,
			Override: rc.Override,
		})
	}
	return rules
}

// AuthConfig configures request authentication.
type AuthConfig struct {
	// JWTSecret signs and verifies bearer tokens. Empty means a
	// random per-process secret.
	JWTSecret string `yaml:"jwt_secret,omitempty"`

	// TokenExpiry bounds issued token lifetime.
	TokenExpiry time.Duration `yaml:"token_expiry"`

	// APIKeyHeader is the header carrying static API keys
	// (default: X-API-Key).
	APIKeyHeader string `yaml:"api_key_header"`

	// APIKeys are statically configured keys, bcrypt-hashed.
	APIKeys []APIKeyConfig `yaml:"api_keys,omitempty"`
}

// APIKeyConfig is one static API key.
type APIKeyConfig struct {
	ID      string   `yaml:"id"`
	KeyHash string   `yaml:"key_hash"`
	Roles   []string `yaml:"roles,omitempty"`
	Scopes  []string `yaml:"scopes,omitempty"`
}

// AuditConfig configures the access audit trail.
type AuditConfig struct {
	// Mode is "none", "memory", or "sqlite".
	Mode string `yaml:"mode"`

	// DSN is the sqlite database path.
	DSN string `yaml:"dsn,omitempty"`

	// MaxRecords bounds the memory store.
	MaxRecords int `yaml:"max_records,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// OpenAPIConfig configures the generated OpenAPI document.
type OpenAPIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment
// variables, for deployments without a config file.
//
// Environment variables:
//
//	ROUTEFORGE_SCAN_ROOT       - Route tree to scan (required)
//	ROUTEFORGE_SERVER_HOST     - Server host (default: 0.0.0.0)
//	ROUTEFORGE_SERVER_PORT     - Server port (default: 8080)
//	ROUTEFORGE_AUTH_JWT_SECRET - JWT signing secret
//	ROUTEFORGE_RBAC_ENABLED    - Enable access-control engine (default: true)
//	ROUTEFORGE_AUDIT_MODE      - Audit mode: none, memory, sqlite
//	ROUTEFORGE_LOG_LEVEL       - Log level: debug, info, warn, error
//	ROUTEFORGE_LOG_FORMAT      - Log format: json or console
//	ROUTEFORGE_METRICS_ENABLED - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment
// variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if os.Getenv("ROUTEFORGE_SCAN_ROOT") != "" {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set ROUTEFORGE_SCAN_ROOT")
}

// applyEnvOverrides applies ROUTEFORGE_* environment variables.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ROUTEFORGE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("ROUTEFORGE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ROUTEFORGE_SCAN_ROOT"); v != "" {
		cfg.Scan.Root = v
	}
	if v := os.Getenv("ROUTEFORGE_SCAN_WATCH"); v != "" {
		cfg.Scan.Watch = parseBool(v)
	}
	if v := os.Getenv("ROUTEFORGE_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("ROUTEFORGE_RBAC_ENABLED"); v != "" {
		cfg.RBAC.Enabled = parseBool(v)
	}
	if v := os.Getenv("ROUTEFORGE_AUDIT_MODE"); v != "" {
		cfg.Audit.Mode = v
	}
	if v := os.Getenv("ROUTEFORGE_AUDIT_DSN"); v != "" {
		cfg.Audit.DSN = v
	}
	if v := os.Getenv("ROUTEFORGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ROUTEFORGE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("ROUTEFORGE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}

	if cfg.Scan.Debounce == 0 {
		cfg.Scan.Debounce = 300 * time.Millisecond
	}

	if cfg.Registry.CacheSize == 0 {
		cfg.Registry.CacheSize = 1024
	}

	if cfg.RBAC.SuperAdminRoles == nil {
		cfg.RBAC.SuperAdminRoles = []string{"superadmin"}
	}
	if cfg.RBAC.CacheTTL == 0 {
		cfg.RBAC.CacheTTL = 30 * time.Second
	}

	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 24 * time.Hour
	}
	if cfg.Auth.APIKeyHeader == "" {
		cfg.Auth.APIKeyHeader = "X-API-Key"
	}

	if cfg.Audit.Mode == "" {
		cfg.Audit.Mode = "none"
	}
	if cfg.Audit.DSN == "" {
		cfg.Audit.DSN = "routeforge_audit.db"
	}
	if cfg.Audit.MaxRecords == 0 {
		cfg.Audit.MaxRecords = 1000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.OpenAPI.Title == "" {
		cfg.OpenAPI.Title = "RouteForge API"
	}
	if cfg.OpenAPI.Version == "" {
		cfg.OpenAPI.Version = "1.0.0"
	}
}

func validate(cfg *Config) error {
	if cfg.Scan.Root == "" {
		return fmt.Errorf("scan.root is required")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q invalid", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q invalid", cfg.Logging.Format)
	}

	switch cfg.Audit.Mode {
	case "none", "memory", "sqlite":
	default:
		return fmt.Errorf("audit.mode %q invalid", cfg.Audit.Mode)
	}

	for i, rule := range cfg.RBAC.Rules {
		if rule.Pattern == "" {
			return fmt.Errorf("rbac.rules[%d]: pattern is required", i)
		}
		if rule.Resource == "" && rule.Action == "" {
			return fmt.Errorf("rbac.rules[%d]: resource or action is required", i)
		}
	}

	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

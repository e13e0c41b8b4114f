package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces every gateway variable except PORT and DATABASE_URL,
// which follow platform conventions and are read un-prefixed.
const envPrefix = "AUTHGATE"

// canonical maps stripped environment variable names onto dotted config
// keys. Variables outside this table are ignored.
var canonical = map[string]string{
	"config_backend":           "config.backend",
	"config":                   "config.path",
	"cache_enabled":            "cache.enabled",
	"cache_backend":            "cache.backend",
	"redis_url":                "redis.url",
	"session_cookie":           "session.cookie",
	"session_url":              "session.url",
	"callback_domain":          "callback.domain",
	"enable_admin_api":         "admin.enabled",
	"admin_token":              "admin.token",
	"admin_session_roles":      "admin.sessionRoles",
	"admin_allow_test_token":   "admin.allowTestToken",
	"log_level":                "log.level",
	"log_format":               "log.format",
	"bootstrap_session_url":    "bootstrap.sessionUrl",
	"bootstrap_login_redirect": "bootstrap.loginRedirect",
	"bootstrap_cookie_name":    "bootstrap.cookieName",
	"bootstrap_route_host":     "bootstrap.routeHost",
	"bootstrap_route_path":     "bootstrap.routePath",
	"bootstrap_route_roles":    "bootstrap.routeRoles",
}

// Load assembles the effective settings with env > default precedence.
func Load() (Settings, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Settings{}, fmt.Errorf("config: load defaults: %w", err)
	}

	transform := func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix+"_"))
		if mapped, ok := canonical[key]; ok {
			return mapped
		}
		return ""
	}
	if err := k.Load(env.Provider(envPrefix, ".", transform), nil); err != nil {
		return Settings{}, fmt.Errorf("config: load env: %w", err)
	}

	cfg := Settings{
		Port:          k.Int("port"),
		ConfigBackend: strings.ToLower(strings.TrimSpace(k.String("config.backend"))),
		ConfigPath:    k.String("config.path"),
		DatabaseURL:   k.String("database.url"),

		CacheEnabled: k.Bool("cache.enabled"),
		CacheBackend: strings.ToLower(strings.TrimSpace(k.String("cache.backend"))),
		RedisURL:     k.String("redis.url"),

		SessionCookie:  k.String("session.cookie"),
		SessionURL:     k.String("session.url"),
		CallbackDomain: k.String("callback.domain"),

		EnableAdminAPI:      k.Bool("admin.enabled"),
		AdminToken:          k.String("admin.token"),
		AdminSessionRoles:   splitList(k.String("admin.sessionRoles")),
		AdminAllowTestToken: k.Bool("admin.allowTestToken"),

		Log: LoggingConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
		Bootstrap: BootstrapSettings{
			SessionURL:    k.String("bootstrap.sessionUrl"),
			LoginRedirect: k.String("bootstrap.loginRedirect"),
			CookieName:    k.String("bootstrap.cookieName"),
			RouteHost:     k.String("bootstrap.routeHost"),
			RoutePath:     k.String("bootstrap.routePath"),
			RouteRoles:    splitList(k.String("bootstrap.routeRoles")),
		},
	}

	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return Settings{}, fmt.Errorf("config: invalid PORT %q", raw)
		}
		cfg.Port = port
	}
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		cfg.DatabaseURL = raw
	}

	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// Validate rejects settings the process cannot start with.
func (s Settings) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", s.Port)
	}
	switch s.ConfigBackend {
	case BackendJSON:
		if s.ConfigPath == "" {
			return fmt.Errorf("config: AUTHGATE_CONFIG required with json backend")
		}
	case BackendPostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL required with postgres backend")
		}
	default:
		return fmt.Errorf("config: unsupported config backend %q", s.ConfigBackend)
	}
	switch s.CacheBackend {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("config: unsupported cache backend %q", s.CacheBackend)
	}
	return nil
}

func defaults() map[string]any {
	return map[string]any{
		"port":           4181,
		"config.backend": BackendJSON,
		"config.path":    "authgate.json",
		"cache.enabled":  true,
		"cache.backend":  CacheMemory,
		"redis.url":      "redis://127.0.0.1:6379",
		"session.cookie": "session",
		"log.level":      "info",
		"log.format":     "json",
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

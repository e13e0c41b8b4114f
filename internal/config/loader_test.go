package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 4181, cfg.Port)
	require.Equal(t, BackendJSON, cfg.ConfigBackend)
	require.Equal(t, "authgate.json", cfg.ConfigPath)
	require.True(t, cfg.CacheEnabled)
	require.Equal(t, CacheMemory, cfg.CacheBackend)
	require.Equal(t, "redis://127.0.0.1:6379", cfg.RedisURL)
	require.Equal(t, "session", cfg.SessionCookie)
	require.False(t, cfg.EnableAdminAPI)
	require.False(t, cfg.AdminAllowTestToken)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("AUTHGATE_CONFIG", "/etc/authgate/rules.json")
	t.Setenv("AUTHGATE_CACHE_BACKEND", "redis")
	t.Setenv("AUTHGATE_REDIS_URL", "redis://cache.internal:6379")
	t.Setenv("AUTHGATE_SESSION_COOKIE", "gateway_session")
	t.Setenv("AUTHGATE_CALLBACK_DOMAIN", "https://auth.example.com")
	t.Setenv("AUTHGATE_LOG_LEVEL", "debug")
	t.Setenv("AUTHGATE_LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "/etc/authgate/rules.json", cfg.ConfigPath)
	require.Equal(t, CacheRedis, cfg.CacheBackend)
	require.Equal(t, "redis://cache.internal:6379", cfg.RedisURL)
	require.Equal(t, "gateway_session", cfg.SessionCookie)
	require.Equal(t, "https://auth.example.com", cfg.CallbackDomain)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "text", cfg.Log.Format)
}

func TestLoadPlatformVariables(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("AUTHGATE_CONFIG_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://authgate:secret@db:5432/authgate")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, BackendPostgres, cfg.ConfigBackend)
	require.Equal(t, "postgres://authgate:secret@db:5432/authgate", cfg.DatabaseURL)
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadAdminSettings(t *testing.T) {
	t.Setenv("AUTHGATE_ENABLE_ADMIN_API", "true")
	t.Setenv("AUTHGATE_ADMIN_TOKEN", "super-secret")
	t.Setenv("AUTHGATE_ADMIN_SESSION_ROLES", "admin, operator ,")
	t.Setenv("AUTHGATE_ADMIN_ALLOW_TEST_TOKEN", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.EnableAdminAPI)
	require.Equal(t, "super-secret", cfg.AdminToken)
	require.Equal(t, []string{"admin", "operator"}, cfg.AdminSessionRoles)
	require.True(t, cfg.AdminAllowTestToken)
}

func TestLoadBootstrapSettings(t *testing.T) {
	t.Setenv("AUTHGATE_CONFIG_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://db/authgate")
	t.Setenv("AUTHGATE_BOOTSTRAP_SESSION_URL", "https://id.example.com/session")
	t.Setenv("AUTHGATE_BOOTSTRAP_LOGIN_REDIRECT", "https://id.example.com/login")
	t.Setenv("AUTHGATE_BOOTSTRAP_ROUTE_HOST", "*.example.com")
	t.Setenv("AUTHGATE_BOOTSTRAP_ROUTE_PATH", "/*")
	t.Setenv("AUTHGATE_BOOTSTRAP_ROUTE_ROLES", "user,admin")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://id.example.com/session", cfg.Bootstrap.SessionURL)
	require.Equal(t, "https://id.example.com/login", cfg.Bootstrap.LoginRedirect)
	require.Equal(t, "*.example.com", cfg.Bootstrap.RouteHost)
	require.Equal(t, "/*", cfg.Bootstrap.RoutePath)
	require.Equal(t, []string{"user", "admin"}, cfg.Bootstrap.RouteRoles)
}

func TestLoadUnknownVariablesIgnored(t *testing.T) {
	t.Setenv("AUTHGATE_NOT_A_SETTING", "whatever")
	_, err := Load()
	require.NoError(t, err)
}

func TestValidateBackendRequirements(t *testing.T) {
	base := Settings{
		Port:          4181,
		ConfigBackend: BackendJSON,
		ConfigPath:    "authgate.json",
		CacheBackend:  CacheMemory,
	}
	require.NoError(t, base.Validate())

	cfg := base
	cfg.ConfigPath = ""
	require.Error(t, cfg.Validate())

	cfg = base
	cfg.ConfigBackend = BackendPostgres
	require.Error(t, cfg.Validate())
	cfg.DatabaseURL = "postgres://db/authgate"
	require.NoError(t, cfg.Validate())

	cfg = base
	cfg.ConfigBackend = "etcd"
	require.Error(t, cfg.Validate())

	cfg = base
	cfg.CacheBackend = "memcached"
	require.Error(t, cfg.Validate())

	cfg = base
	cfg.Port = 0
	require.Error(t, cfg.Validate())
	cfg.Port = 70000
	require.Error(t, cfg.Validate())
}

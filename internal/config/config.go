package config

// Backend selection values for the rule store.
const (
	BackendJSON     = "json"
	BackendPostgres = "postgres"
)

// Cache backend selection values.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Settings is the effective process configuration assembled from the
// environment. The rule table and identity endpoints live in the rule store,
// not here; Settings only selects backends and tunes the process.
type Settings struct {
	Port int

	ConfigBackend string
	ConfigPath    string
	DatabaseURL   string

	CacheEnabled bool
	CacheBackend string
	RedisURL     string

	SessionCookie  string
	SessionURL     string
	CallbackDomain string

	EnableAdminAPI      bool
	AdminToken          string
	AdminSessionRoles   []string
	AdminAllowTestToken bool

	Log       LoggingConfig
	Bootstrap BootstrapSettings
}

// LoggingConfig shapes the process logger.
type LoggingConfig struct {
	Level  string
	Format string
}

// BootstrapSettings seed a fresh postgres backend on first start. Unset
// fields skip their seed step.
type BootstrapSettings struct {
	SessionURL    string
	LoginRedirect string
	CookieName    string
	RouteHost     string
	RoutePath     string
	RouteRoles    []string
}

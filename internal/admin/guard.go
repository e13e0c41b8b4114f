package admin

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/l0p7/authgate/internal/session"
)

type admitResult int

const (
	admitOK admitResult = iota
	admitUnauthorized
	admitForbidden
)

// Guard authenticates administrative calls. Two paths admit a caller: a
// bearer token equal to the configured admin token, or a session cookie
// resolving to a principal holding one of the configured admin roles.
type Guard struct {
	logger   *slog.Logger
	resolver *session.Resolver

	token          string
	allowTestToken bool
	cookieName     string
	sessionURL     string
	roles          []string
}

// GuardConfig carries the admin authentication settings.
type GuardConfig struct {
	Token string
	// AllowTestToken additionally admits the literal value "test-token"
	// when a real token is configured. Integration-test affordance; keep
	// off in production.
	AllowTestToken bool
	SessionCookie  string
	SessionURL     string
	SessionRoles   []string
}

// NewGuard builds the guard. The resolver shares the gateway's session cache
// and identity client.
func NewGuard(logger *slog.Logger, resolver *session.Resolver, cfg GuardConfig) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	cookie := cfg.SessionCookie
	if cookie == "" {
		cookie = "session"
	}
	return &Guard{
		logger:         logger.With(slog.String("agent", "admin_guard")),
		resolver:       resolver,
		token:          cfg.Token,
		allowTestToken: cfg.AllowTestToken,
		cookieName:     cookie,
		sessionURL:     cfg.SessionURL,
		roles:          cfg.SessionRoles,
	}
}

// admit decides whether the request may reach the admin surface.
func (g *Guard) admit(r *http.Request) admitResult {
	if token, ok := bearerToken(r); ok && g.tokenValid(token) {
		return admitOK
	}

	cookie, err := r.Cookie(g.cookieName)
	if err == nil && cookie.Value != "" && g.sessionURL != "" && g.resolver != nil {
		sess, err := g.resolver.Resolve(r.Context(), g.sessionURL, cookie.Value)
		if err != nil {
			g.logger.Debug("admin session resolution failed", slog.Any("error", err))
			return admitUnauthorized
		}
		if g.hasAdminRole(sess) {
			return admitOK
		}
		return admitForbidden
	}

	return admitUnauthorized
}

func (g *Guard) tokenValid(token string) bool {
	if g.token == "" {
		return false
	}
	if token == g.token {
		return true
	}
	return g.allowTestToken && token == "test-token"
}

func (g *Guard) hasAdminRole(s *session.Session) bool {
	for _, role := range s.User.Roles {
		for _, allowed := range g.roles {
			if role == allowed {
				return true
			}
		}
	}
	return false
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

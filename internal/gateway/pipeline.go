// Package gateway implements the forward-auth decision pipeline: per
// forwarded request it matches the rule table, resolves the session, and
// evaluates policy, emitting exactly one of allow, redirect, forbid, or
// internal error.
package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/l0p7/authgate/internal/matcher"
	"github.com/l0p7/authgate/internal/metrics"
	"github.com/l0p7/authgate/internal/policy"
	"github.com/l0p7/authgate/internal/rules"
	"github.com/l0p7/authgate/internal/session"
)

// Outcome labels for decision metrics and logs.
const (
	outcomeAllow    = "allow"
	outcomeRedirect = "redirect"
	outcomeForbid   = "forbid"
	outcomeError    = "internal_error"
)

// Pipeline orchestrates one decision per forwarded request. It holds no
// per-request state beyond local variables; the rule table snapshot is taken
// once per request and released before any cache or identity I/O.
type Pipeline struct {
	logger         *slog.Logger
	manager        *rules.Manager
	resolver       *session.Resolver
	metrics        *metrics.Recorder
	callbackDomain string
}

// Options wires the pipeline's collaborators.
type Options struct {
	Manager        *rules.Manager
	Resolver       *session.Resolver
	Metrics        *metrics.Recorder
	CallbackDomain string
}

// New builds the pipeline.
func New(logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:         logger.With(slog.String("agent", "pipeline")),
		manager:        opts.Manager,
		resolver:       opts.Resolver,
		metrics:        opts.Metrics,
		callbackDomain: strings.TrimRight(opts.CallbackDomain, "/"),
	}
}

// ServeAuth handles GET /auth. Request metadata arrives from the reverse
// proxy either as query parameters or X-Forwarded-* headers; query wins when
// both are present.
func (p *Pipeline) ServeAuth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	host := forwardedValue(r, "X-Forwarded-Host", "unknown-host")
	path := forwardedValue(r, "X-Forwarded-Uri", "/")
	proto := forwardedValue(r, "X-Forwarded-Proto", "http")

	originalURL := fmt.Sprintf("%s://%s%s", proto, host, path)
	effectiveNext := originalURL
	if p.callbackDomain != "" {
		effectiveNext = fmt.Sprintf("%s/auth/callback?next=%s", p.callbackDomain, encodeNext(originalURL))
	}

	snap := p.manager.Snapshot()

	rule := matcher.Match(snap.Routes, host, path)
	if rule == nil {
		p.logger.Debug("no matching rule, allowing request", slog.String("url", originalURL))
		w.WriteHeader(http.StatusOK)
		p.observe(outcomeAllow, http.StatusOK, start)
		return
	}

	token := cookieValue(r, snap.CookieName)
	if token == "" {
		p.logger.Debug("no session token, redirecting to login", slog.String("url", originalURL))
		p.redirectToLogin(w, r, snap.Auth.LoginRedirect, effectiveNext)
		p.observe(outcomeRedirect, http.StatusFound, start)
		return
	}

	sess, err := p.resolver.Resolve(r.Context(), snap.Auth.SessionURL, token)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// The proxy abandoned the forwarded-auth call; emit nothing.
			return
		}
		// Outage and rejection collapse to the same answer: go log in.
		p.logger.Warn("session resolution failed, redirecting to login", slog.Any("error", err))
		p.redirectToLogin(w, r, snap.Auth.LoginRedirect, effectiveNext)
		p.observe(outcomeRedirect, http.StatusFound, start)
		return
	}

	switch res := policy.Evaluate(sess, rule.Require); res.Decision {
	case policy.Authorized:
		p.logger.Debug("request authorized", slog.String("url", originalURL), slog.String("user", sess.User.ID))
		setIdentityHeaders(w.Header(), sess)
		w.WriteHeader(http.StatusOK)
		p.observe(outcomeAllow, http.StatusOK, start)
	case policy.Unauthorized:
		p.logger.Warn("request forbidden", slog.String("url", originalURL), slog.String("reason", res.Reason))
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprintf(w, "Forbidden: %s", res.Reason)
		p.observe(outcomeForbid, http.StatusForbidden, start)
	case policy.Unauthenticated:
		p.redirectToLogin(w, r, snap.Auth.LoginRedirect, effectiveNext)
		p.observe(outcomeRedirect, http.StatusFound, start)
	default:
		p.logger.Error("policy evaluation failed", slog.String("url", originalURL), slog.String("reason", res.Reason))
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Internal server error: %s", res.Reason)
		p.observe(outcomeError, http.StatusInternalServerError, start)
	}
}

// redirectToLogin sends the 302 whose next parameter lets the login flow
// return to the original (or callback-wrapped) URL.
func (p *Pipeline) redirectToLogin(w http.ResponseWriter, r *http.Request, loginRedirect, next string) {
	sep := "?"
	if strings.Contains(loginRedirect, "?") {
		sep = "&"
	}
	http.Redirect(w, r, loginRedirect+sep+"next="+encodeNext(next), http.StatusFound)
}

func (p *Pipeline) observe(outcome string, status int, start time.Time) {
	p.metrics.ObserveDecision(outcome, status, time.Since(start))
}

// setIdentityHeaders exposes the principal to the upstream on allow. List
// headers are comma-joined and omitted when empty.
func setIdentityHeaders(h http.Header, s *session.Session) {
	h.Set("X-Auth-User-Id", s.User.ID)
	h.Set("X-Auth-User-Email", s.User.Email)
	if len(s.User.Roles) > 0 {
		h.Set("X-Auth-User-Roles", strings.Join(s.User.Roles, ","))
	}
	if len(s.User.Permissions) > 0 {
		h.Set("X-Auth-User-Permissions", strings.Join(s.User.Permissions, ","))
	}
}

// forwardedValue prefers the query parameter over the same-named header.
func forwardedValue(r *http.Request, name, fallback string) string {
	if v := r.URL.Query().Get(name); v != "" {
		return v
	}
	if v := r.Header.Get(name); v != "" {
		return v
	}
	return fallback
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// encodeNext is base64url without padding over the UTF-8 bytes of the URL.
func encodeNext(url string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(url))
}

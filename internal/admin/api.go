// Package admin exposes the rule CRUD surface and the guard protecting it.
// The surface is only live when admin mode is enabled and the rule store is
// the mutable postgres backend; otherwise every admin path answers 403.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/l0p7/authgate/internal/rules"
)

// Store is the mutable rule backend surface the API drives.
type Store interface {
	Routes(ctx context.Context) ([]rules.Rule, error)
	RouteByID(ctx context.Context, id int) (rules.Rule, error)
	CreateRoute(ctx context.Context, route rules.Rule) (rules.Rule, error)
	UpdateRoute(ctx context.Context, route rules.Rule) (rules.Rule, error)
	DeleteRoute(ctx context.Context, id int) error
}

// Reloader swaps the live rule table in after a mutation. Keeping it a bare
// function stops the admin surface from reaching back into the store.
type Reloader func(ctx context.Context) error

// API serves the administrative endpoints under /admin. Mount with the
// prefix stripped.
type API struct {
	logger  *slog.Logger
	enabled bool
	guard   *Guard
	store   Store
	reload  Reloader
}

// New builds the admin API. When enabled is false or store is nil, every
// path answers 403 with an explanatory message.
func New(logger *slog.Logger, guard *Guard, store Store, reload Reloader, enabled bool) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		logger:  logger.With(slog.String("agent", "admin")),
		enabled: enabled && store != nil,
		guard:   guard,
		store:   store,
		reload:  reload,
	}
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !a.enabled {
		writeError(w, http.StatusForbidden,
			"Admin API is not available. Set AUTHGATE_ENABLE_ADMIN_API=true and use the postgres config backend to enable.")
		return
	}

	switch a.guard.admit(r) {
	case admitUnauthorized:
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	case admitForbidden:
		writeError(w, http.StatusForbidden, "Insufficient permissions")
		return
	}

	head, rest := shiftPath(r.URL.Path)
	switch head {
	case "health":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Admin API is available"})
	case "routes":
		a.serveRoutes(w, r, rest)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (a *API) serveRoutes(w http.ResponseWriter, r *http.Request, rest string) {
	if rest == "" {
		switch r.Method {
		case http.MethodGet:
			a.listRoutes(w, r)
		case http.MethodPost:
			a.createRoute(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	id, err := strconv.Atoi(rest)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ID: "+rest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getRoute(w, r, id)
	case http.MethodPut:
		a.updateRoute(w, r, id)
	case http.MethodDelete:
		a.deleteRoute(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *API) listRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := a.store.Routes(r.Context())
	if err != nil {
		a.storeError(w, err)
		return
	}
	if routes == nil {
		routes = []rules.Rule{}
	}
	writeJSON(w, http.StatusOK, routes)
}

func (a *API) getRoute(w http.ResponseWriter, r *http.Request, id int) {
	route, err := a.store.RouteByID(r.Context(), id)
	if err != nil {
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (a *API) createRoute(w http.ResponseWriter, r *http.Request) {
	route, ok := decodeRoute(w, r)
	if !ok {
		return
	}
	route.ID = 0
	created, err := a.store.CreateRoute(r.Context(), route)
	if err != nil {
		a.storeError(w, err)
		return
	}
	if !a.reloadTable(w, r) {
		return
	}
	a.logger.Info("route created", slog.Int("id", created.ID))
	writeJSON(w, http.StatusOK, created)
}

func (a *API) updateRoute(w http.ResponseWriter, r *http.Request, id int) {
	route, ok := decodeRoute(w, r)
	if !ok {
		return
	}
	if _, err := a.store.RouteByID(r.Context(), id); err != nil {
		a.storeError(w, err)
		return
	}
	route.ID = id
	updated, err := a.store.UpdateRoute(r.Context(), route)
	if err != nil {
		a.storeError(w, err)
		return
	}
	if !a.reloadTable(w, r) {
		return
	}
	a.logger.Info("route updated", slog.Int("id", updated.ID))
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteRoute(w http.ResponseWriter, r *http.Request, id int) {
	if _, err := a.store.RouteByID(r.Context(), id); err != nil {
		a.storeError(w, err)
		return
	}
	if err := a.store.DeleteRoute(r.Context(), id); err != nil {
		a.storeError(w, err)
		return
	}
	if !a.reloadTable(w, r) {
		return
	}
	a.logger.Info("route deleted", slog.Int("id", id))
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Route deleted successfully"})
}

// reloadTable makes the mutation visible to the pipeline before the admin
// call returns.
func (a *API) reloadTable(w http.ResponseWriter, r *http.Request) bool {
	if a.reload == nil {
		return true
	}
	if err := a.reload(r.Context()); err != nil {
		a.logger.Error("configuration reload after mutation failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Failed to reload configuration")
		return false
	}
	return true
}

func (a *API) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rules.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rules.ErrConfigInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.Error("rule store error", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeRoute(w http.ResponseWriter, r *http.Request) (rules.Rule, bool) {
	var route rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&route); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid route payload: "+err.Error())
		return rules.Rule{}, false
	}
	if err := rules.ValidateRule(route); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return rules.Rule{}, false
	}
	return route, true
}

// shiftPath splits "/routes/3" into ("routes", "3").
func shiftPath(path string) (string, string) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", ""
	}
	head, rest, _ := strings.Cut(trimmed, "/")
	return head, rest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}

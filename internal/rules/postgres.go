package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the mutable rule backend. Besides Load it exposes the CRUD
// surface the admin API drives; every mutation is followed by a table reload
// through the Manager before the admin call returns.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pooled client and verifies the database is
// reachable.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("%w: database url required", ErrConfigInvalid)
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("rules: postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: postgres ping: %v", ErrBackendUnavailable, err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the configuration tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS auth_config (
    id             SERIAL PRIMARY KEY,
    session_url    TEXT NOT NULL,
    login_redirect TEXT NOT NULL,
    cookie_name    TEXT
);
CREATE TABLE IF NOT EXISTS routes (
    id      SERIAL PRIMARY KEY,
    host    TEXT NOT NULL,
    path    TEXT NOT NULL,
    require JSONB NOT NULL
);`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("rules: ensure schema: %w", err)
	}
	return nil
}

// BootstrapSeed carries the optional first-run rows inserted when the
// respective tables are empty. Empty fields skip their seed step.
type BootstrapSeed struct {
	SessionURL    string
	LoginRedirect string
	CookieName    string
	RouteHost     string
	RoutePath     string
	RouteRoles    []string
}

// Bootstrap seeds auth_config and an initial route so a fresh database can
// serve traffic without manual inserts. Existing rows are never touched.
func (s *PostgresStore) Bootstrap(ctx context.Context, seed BootstrapSeed) error {
	if seed.SessionURL != "" && seed.LoginRedirect != "" {
		var exists int
		err := s.pool.QueryRow(ctx, `SELECT id FROM auth_config LIMIT 1`).Scan(&exists)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			cookie := seed.CookieName
			if cookie == "" {
				cookie = DefaultCookieName
			}
			if _, err := s.pool.Exec(ctx,
				`INSERT INTO auth_config (session_url, login_redirect, cookie_name) VALUES ($1, $2, $3)`,
				seed.SessionURL, seed.LoginRedirect, cookie); err != nil {
				return fmt.Errorf("rules: seed auth_config: %w", err)
			}
		case err != nil:
			return fmt.Errorf("rules: check auth_config: %w", err)
		}
	}

	if seed.RouteHost != "" && seed.RoutePath != "" {
		var exists int
		err := s.pool.QueryRow(ctx,
			`SELECT id FROM routes WHERE host = $1 AND path = $2`,
			seed.RouteHost, seed.RoutePath).Scan(&exists)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			require, err := json.Marshal(Requirement{Roles: seed.RouteRoles})
			if err != nil {
				return fmt.Errorf("rules: seed route requirement: %w", err)
			}
			if _, err := s.pool.Exec(ctx,
				`INSERT INTO routes (host, path, require) VALUES ($1, $2, $3)`,
				seed.RouteHost, seed.RoutePath, require); err != nil {
				return fmt.Errorf("rules: seed route: %w", err)
			}
		case err != nil:
			return fmt.Errorf("rules: check routes: %w", err)
		}
	}

	return nil
}

// Load assembles the full configuration: the auth_config row plus the rule
// table ordered by id, so table order is stable across reloads.
func (s *PostgresStore) Load(ctx context.Context) (Config, error) {
	var cfg Config
	var cookie *string
	err := s.pool.QueryRow(ctx,
		`SELECT session_url, login_redirect, cookie_name FROM auth_config LIMIT 1`,
	).Scan(&cfg.Auth.SessionURL, &cfg.Auth.LoginRedirect, &cookie)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, fmt.Errorf("%w: auth_config table is empty", ErrConfigInvalid)
		}
		return Config{}, fmt.Errorf("%w: load auth_config: %v", ErrBackendUnavailable, err)
	}
	if cookie != nil {
		cfg.CookieName = *cookie
	}

	routes, err := s.Routes(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg.Routes = routes

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Routes lists the rule table in id order.
func (s *PostgresStore) Routes(ctx context.Context) ([]Rule, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, host, path, require FROM routes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: query routes: %v", ErrBackendUnavailable, err)
	}
	defer rows.Close()

	var routes []Rule
	for rows.Next() {
		route, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate routes: %v", ErrBackendUnavailable, err)
	}
	return routes, nil
}

// RouteByID fetches a single rule, reporting ErrNotFound for unknown ids.
func (s *PostgresStore) RouteByID(ctx context.Context, id int) (Rule, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, host, path, require FROM routes WHERE id = $1`, id)
	route, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, fmt.Errorf("%w: route %d", ErrNotFound, id)
		}
		return Rule{}, err
	}
	return route, nil
}

// CreateRoute inserts a rule and returns it with the database-assigned id.
func (s *PostgresStore) CreateRoute(ctx context.Context, route Rule) (Rule, error) {
	require, err := json.Marshal(route.Require)
	if err != nil {
		return Rule{}, fmt.Errorf("rules: encode requirement: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO routes (host, path, require) VALUES ($1, $2, $3) RETURNING id, host, path, require`,
		route.Host, route.Path, require)
	created, err := scanRule(row)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: create route: %v", ErrBackendUnavailable, err)
	}
	return created, nil
}

// UpdateRoute replaces an existing rule in place.
func (s *PostgresStore) UpdateRoute(ctx context.Context, route Rule) (Rule, error) {
	require, err := json.Marshal(route.Require)
	if err != nil {
		return Rule{}, fmt.Errorf("rules: encode requirement: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE routes SET host = $2, path = $3, require = $4 WHERE id = $1 RETURNING id, host, path, require`,
		route.ID, route.Host, route.Path, require)
	updated, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, fmt.Errorf("%w: route %d", ErrNotFound, route.ID)
		}
		return Rule{}, fmt.Errorf("%w: update route: %v", ErrBackendUnavailable, err)
	}
	return updated, nil
}

// DeleteRoute removes a rule, reporting ErrNotFound when nothing matched.
func (s *PostgresStore) DeleteRoute(ctx context.Context, id int) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM routes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete route: %v", ErrBackendUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: route %d", ErrNotFound, id)
	}
	return nil
}

func scanRule(row pgx.Row) (Rule, error) {
	var route Rule
	var require []byte
	if err := row.Scan(&route.ID, &route.Host, &route.Path, &require); err != nil {
		return Rule{}, err
	}
	if err := json.Unmarshal(require, &route.Require); err != nil {
		return Rule{}, fmt.Errorf("%w: route %d requirement: %v", ErrConfigInvalid, route.ID, err)
	}
	return route, nil
}

package rules

import (
	"bytes"
	"encoding/json"
)

// DefaultCookieName is used when the loaded configuration does not name a
// request cookie.
const DefaultCookieName = "session"

// Config is the full gateway configuration supplied by a Store: the identity
// endpoints plus the ordered rule table. Table order is provider-defined and
// preserved across reloads; the first matching rule wins.
type Config struct {
	Auth       AuthConfig `json:"auth"`
	Routes     []Rule     `json:"routes"`
	CookieName string     `json:"cookie_name,omitempty"`
}

// AuthConfig names the external identity endpoint and the login flow entry
// point unauthenticated requests are redirected to.
type AuthConfig struct {
	SessionURL    string `json:"session_url"`
	LoginRedirect string `json:"login_redirect"`
}

// Rule protects a (host, path) pattern pair with a Requirement. ID is only
// meaningful for rules persisted by the mutable store; rules loaded from a
// file carry zero.
type Rule struct {
	ID      int         `json:"id,omitempty"`
	Host    string      `json:"host"`
	Path    string      `json:"path"`
	Require Requirement `json:"require"`
}

// Requirement is a conjunction of four optional clauses. A principal
// satisfies the requirement iff it satisfies every present clause.
//
// Scopes and Teams stay undecoded until evaluation: a structurally malformed
// clause is a policy evaluation error, not a load error, matching the
// persisted jsonb column which accepts any shape.
type Requirement struct {
	Roles       []string        `json:"roles,omitempty"`
	Permissions []string        `json:"permissions,omitempty"`
	Scopes      json.RawMessage `json:"scopes,omitempty"`
	Teams       json.RawMessage `json:"teams,omitempty"`
}

// Empty reports whether no clause is present and non-empty.
func (r Requirement) Empty() bool {
	return len(r.Roles) == 0 &&
		len(r.Permissions) == 0 &&
		rawAbsent(r.Scopes) &&
		rawAbsent(r.Teams)
}

func rawAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]"))
}

// ScopeDemand is the requirement counterpart of a scope grant. A grant
// matches the demand iff resource type and action are equal and the demand
// either names no resource id or names the grant's.
type ScopeDemand struct {
	ResourceType string  `json:"resource_type"`
	Action       string  `json:"action"`
	ResourceID   *string `json:"resource_id,omitempty"`
}

// TeamDemand admits a principal through team membership. Either ID or Name
// may identify the team; when Scopes is present the team's own grants must
// additionally satisfy every inner demand.
type TeamDemand struct {
	ID     *string       `json:"id,omitempty"`
	Name   *string       `json:"name,omitempty"`
	Scopes []ScopeDemand `json:"scopes,omitempty"`
}

package session

// Session is the principal returned by the identity service. It exists only
// for the duration of one request's evaluation, apart from TTL-bounded cache
// copies.
type Session struct {
	User        User   `json:"user"`
	TenantID    string `json:"tenant_id"`
	Authority   string `json:"authority"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// User carries the identity and the authorization surfaces policy evaluation
// reads: role and permission sets plus team memberships with scoped grants.
type User struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Teams       []Team   `json:"teams"`
}

// Team is a membership with its own scope grants.
type Team struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	IsOwner bool         `json:"is_owner"`
	Scopes  []ScopeGrant `json:"scopes"`
}

// ScopeGrant is a resource-typed permission unit held through a team.
type ScopeGrant struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Action       string `json:"action"`
}

// AllGrants returns the union of grants across every team. Top-level scope
// demands evaluate against this union rather than any single team.
func (u User) AllGrants() []ScopeGrant {
	var grants []ScopeGrant
	for _, team := range u.Teams {
		grants = append(grants, team.Scopes...)
	}
	return grants
}

func clone(s *Session) *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.User.Roles = append([]string(nil), s.User.Roles...)
	out.User.Permissions = append([]string(nil), s.User.Permissions...)
	if s.User.Teams != nil {
		out.User.Teams = make([]Team, len(s.User.Teams))
		for i, team := range s.User.Teams {
			copied := team
			copied.Scopes = append([]ScopeGrant(nil), team.Scopes...)
			out.User.Teams[i] = copied
		}
	}
	return &out
}

// Package policy decides whether a resolved principal satisfies a rule's
// requirement. Evaluation is pure: no I/O, no clock, no shared state.
package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/l0p7/authgate/internal/rules"
	"github.com/l0p7/authgate/internal/session"
)

// Decision is the outcome class of one evaluation.
type Decision string

const (
	// Authorized admits the request.
	Authorized Decision = "authorized"
	// Unauthorized rejects the request with a reason; the pipeline forbids.
	Unauthorized Decision = "unauthorized"
	// Unauthenticated reports an absent principal; the pipeline redirects.
	Unauthenticated Decision = "unauthenticated"
	// Fault reports a malformed requirement; the pipeline answers 500,
	// never allow.
	Fault Decision = "error"
)

// Result pairs a decision with its reason. Reason is empty for Authorized.
type Result struct {
	Decision Decision
	Reason   string
}

// Evaluate checks the principal against every present clause of the
// requirement, in the fixed order roles, permissions, scopes, teams. The
// first failing clause wins and its reason is reported.
func Evaluate(s *session.Session, req rules.Requirement) Result {
	if s == nil {
		return Result{Decision: Unauthenticated}
	}

	if len(req.Roles) > 0 && !hasAny(s.User.Roles, req.Roles) {
		return Result{
			Decision: Unauthorized,
			Reason:   fmt.Sprintf("user does not have any of the required roles: %s", strings.Join(req.Roles, ", ")),
		}
	}

	if len(req.Permissions) > 0 && !hasAny(s.User.Permissions, req.Permissions) {
		return Result{
			Decision: Unauthorized,
			Reason:   fmt.Sprintf("user does not have any of the required permissions: %s", strings.Join(req.Permissions, ", ")),
		}
	}

	if !rawEmpty(req.Scopes) {
		var demands []rules.ScopeDemand
		if err := json.Unmarshal(req.Scopes, &demands); err != nil {
			return Result{Decision: Fault, Reason: "invalid scope requirement format"}
		}
		// Top-level scope demands evaluate against the union of grants
		// across all of the principal's teams.
		if !grantsSatisfy(s.User.AllGrants(), demands) {
			return Result{
				Decision: Unauthorized,
				Reason:   fmt.Sprintf("user does not have the required scopes: %s", describeScopes(demands)),
			}
		}
	}

	if !rawEmpty(req.Teams) {
		var demands []rules.TeamDemand
		if err := json.Unmarshal(req.Teams, &demands); err != nil {
			return Result{Decision: Fault, Reason: "invalid team requirement format"}
		}
		if !teamAccess(s.User.Teams, demands) {
			return Result{
				Decision: Unauthorized,
				Reason:   "user does not have access through any of the required teams",
			}
		}
	}

	return Result{Decision: Authorized}
}

func hasAny(held, wanted []string) bool {
	for _, want := range wanted {
		for _, have := range held {
			if have == want {
				return true
			}
		}
	}
	return false
}

// grantsSatisfy reports whether every demand finds a matching grant. A grant
// matches a demand iff resource type and action are equal and the demand
// either names no resource id or names the grant's.
func grantsSatisfy(grants []session.ScopeGrant, demands []rules.ScopeDemand) bool {
	for _, demand := range demands {
		if !anyGrantMatches(grants, demand) {
			return false
		}
	}
	return true
}

func anyGrantMatches(grants []session.ScopeGrant, demand rules.ScopeDemand) bool {
	for _, grant := range grants {
		if grant.ResourceType != demand.ResourceType || grant.Action != demand.Action {
			continue
		}
		if demand.ResourceID == nil || *demand.ResourceID == grant.ResourceID {
			return true
		}
	}
	return false
}

// teamAccess reports whether any demand is satisfied by any team. The team
// is identified by id or name (either present field suffices) and, when the
// demand carries inner scope demands, only that team's own grants may
// satisfy them.
func teamAccess(teams []session.Team, demands []rules.TeamDemand) bool {
	for _, demand := range demands {
		for _, team := range teams {
			idMatch := demand.ID != nil && *demand.ID == team.ID
			nameMatch := demand.Name != nil && *demand.Name == team.Name
			if !idMatch && !nameMatch {
				continue
			}
			if len(demand.Scopes) == 0 || grantsSatisfy(team.Scopes, demand.Scopes) {
				return true
			}
		}
	}
	return false
}

func rawEmpty(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

func describeScopes(demands []rules.ScopeDemand) string {
	parts := make([]string, 0, len(demands))
	for _, d := range demands {
		s := d.ResourceType + ":" + d.Action
		if d.ResourceID != nil {
			s += ":" + *d.ResourceID
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

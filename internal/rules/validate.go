package rules

import (
	"fmt"
	"strings"
)

// Validate rejects configurations that must never reach the matcher: missing
// identity endpoints, an empty table, or rules whose patterns or requirements
// violate the table invariants.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Auth.SessionURL) == "" {
		return fmt.Errorf("%w: auth.session_url must not be empty", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.Auth.LoginRedirect) == "" {
		return fmt.Errorf("%w: auth.login_redirect must not be empty", ErrConfigInvalid)
	}
	if len(cfg.Routes) == 0 {
		return fmt.Errorf("%w: at least one route must be defined", ErrConfigInvalid)
	}
	for i, route := range cfg.Routes {
		if err := ValidateRule(route); err != nil {
			return fmt.Errorf("%w (route %d)", err, i)
		}
	}
	return nil
}

// ValidateRule checks a single rule against the pattern and requirement
// invariants. Shared by load-time validation and the admin mutation surface.
func ValidateRule(route Rule) error {
	if route.Host == "" {
		return fmt.Errorf("%w: host must not be empty", ErrConfigInvalid)
	}
	if err := validateHostPattern(route.Host); err != nil {
		return err
	}
	if err := validatePathPattern(route.Path); err != nil {
		return err
	}
	if route.Require.Empty() {
		return fmt.Errorf("%w: at least one of roles, permissions, scopes, or teams must be specified", ErrConfigInvalid)
	}
	return nil
}

// validateHostPattern admits literal DNS names and the single wildcard form
// "*.suffix": exactly one asterisk, at position zero, followed by a dot.
func validateHostPattern(host string) error {
	if !strings.Contains(host, "*") {
		return nil
	}
	if !strings.HasPrefix(host, "*.") || len(host) <= len("*.") {
		return fmt.Errorf("%w: host pattern %q must be a literal or *.suffix", ErrConfigInvalid, host)
	}
	if strings.Contains(host[1:], "*") {
		return fmt.Errorf("%w: host pattern %q contains more than one wildcard", ErrConfigInvalid, host)
	}
	return nil
}

// validatePathPattern admits absolute literal paths and prefix patterns whose
// only asterisk is the final character.
func validatePathPattern(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: path pattern %q must start with /", ErrConfigInvalid, path)
	}
	if i := strings.Index(path, "*"); i >= 0 && i != len(path)-1 {
		return fmt.Errorf("%w: path pattern %q may only use a trailing wildcard", ErrConfigInvalid, path)
	}
	return nil
}

package rules

import "context"

// Store supplies the current gateway configuration. Implementations validate
// before returning; a Config handed to the caller is always safe to serve.
type Store interface {
	Load(ctx context.Context) (Config, error)
}

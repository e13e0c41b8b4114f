package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/knadh/koanf/providers/file"
)

// JSONStore loads the gateway configuration from a single JSON document on
// disk. The document mirrors the admin payload shape wrapped in an auth
// block:
//
//	{"auth": {"session_url": ..., "login_redirect": ...},
//	 "routes": [{"host": ..., "path": ..., "require": {...}}, ...],
//	 "cookie_name": "session"}
type JSONStore struct {
	path string
}

// NewJSONStore points the store at a config file. The file is re-read on
// every Load so reloads pick up edits without process restarts.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the backing file location, used by the reload watcher.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads, decodes, and validates the configuration document.
func (s *JSONStore) Load(ctx context.Context) (Config, error) {
	if err := ctx.Err(); err != nil {
		return Config{}, err
	}

	raw, err := file.Provider(s.path).ReadBytes()
	if err != nil {
		return Config{}, fmt.Errorf("rules: read config file %s: %w", s.path, err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %v", ErrConfigInvalid, s.path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Package auth validates API keys for the MCP HTTP surface.
package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const (
	// ScopeActions allows running actions and reading or deleting the
	// caller's sessions.
	ScopeActions = "actions"
	// ScopeAdmin allows listing every session.
	ScopeAdmin = "admin"
)

type Identity struct {
	ClientID string
	Scopes   []string
}

func (i Identity) HasScope(scope string) bool {
	for _, candidate := range i.Scopes {
		if candidate == scope || candidate == ScopeAdmin {
			return true
		}
	}
	return false
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses "key:client:scope|scope" entries separated
// by commas.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:client:scope|scope", entry)
		}
		key := strings.TrimSpace(parts[0])
		client := strings.TrimSpace(parts[1])
		if key == "" || client == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/client", entry)
		}
		scopes := make([]string, 0, 2)
		for _, scope := range strings.Split(parts[2], "|") {
			scope = strings.TrimSpace(scope)
			switch scope {
			case "":
				continue
			case ScopeActions, ScopeAdmin:
				scopes = append(scopes, scope)
			default:
				return nil, fmt.Errorf("invalid static key entry %q: unknown scope %q", entry, scope)
			}
		}
		if len(scopes) == 0 {
			return nil, fmt.Errorf("invalid static key entry %q: at least one scope is required", entry)
		}
		sort.Strings(scopes)
		validator.keys[key] = Identity{ClientID: client, Scopes: scopes}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

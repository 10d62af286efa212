package rls

import (
	"context"
	"errors"
	"regexp"

	"github.com/vibesec/vibesec/pkg/config"
)

// ErrNotConfigured is returned when the config selects no authority backend.
var ErrNotConfigured = errors.New("no RLS authority configured")

// ErrTableNotFound is returned when the authority has no record of a table.
var ErrTableNotFound = errors.New("table not found")

// Policy is one access policy defined on a table.
type Policy struct {
	Name string `json:"name"`
	// Qual is the policy's USING expression as reported by the authority.
	Qual string `json:"qual"`
}

// TableStatus is a table's protection state as reported by the authority.
type TableStatus struct {
	RLSEnabled bool     `json:"rlsEnabled"`
	Policies   []Policy `json:"policies"`
}

// Authority answers whether a table is protected. The backend (management API
// over HTTP, or direct SQL introspection) is a configuration detail; the
// classification is shared.
type Authority interface {
	TableSecurity(ctx context.Context, table string) (TableStatus, error)
}

// NewAuthority builds the configured authority strategy.
func NewAuthority(ctx context.Context, cfg config.AuthorityConfig) (Authority, error) {
	switch cfg.Kind {
	case "http":
		if cfg.URL == "" {
			return nil, errors.New("http authority requires a url")
		}
		return NewHTTPAuthority(cfg.URL, cfg.ServiceKey), nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("postgres authority requires a databaseUrl")
		}
		return NewPGAuthority(ctx, cfg.DatabaseURL)
	case "":
		return nil, ErrNotConfigured
	}
	return nil, errors.New("unknown authority kind: " + cfg.Kind)
}

var identityExpr = regexp.MustCompile(`auth\.uid\(\)|auth\.jwt\(\)|current_setting\('request\.jwt`)

// IdentityScoped reports whether a policy expression restricts rows to the
// caller's identity rather than granting blanket access.
func (p Policy) IdentityScoped() bool {
	return identityExpr.MatchString(p.Qual)
}

// HasIdentityScopedPolicy reports whether at least one policy on the table is
// identity-scoped.
func (s TableStatus) HasIdentityScopedPolicy() bool {
	for _, p := range s.Policies {
		if p.IdentityScoped() {
			return true
		}
	}
	return false
}

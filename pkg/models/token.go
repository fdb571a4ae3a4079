package models

import "time"

// Scope names understood by the server.
const (
	ScopeUsageWrite = "usage:write"
	ScopeAdmin      = "admin"
)

// DefaultScopes is applied when a token is issued without explicit scopes.
var DefaultScopes = []string{ScopeUsageWrite}

// TokenRecord is the registry entry stored per issued token. Records are
// never deleted; revocation flips Revoked and stamps RevokedAt.
type TokenRecord struct {
	UserID    string     `json:"user_id"`
	Scopes    []string   `json:"scopes"`
	Revoked   bool       `json:"revoked"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the record carries an expiry that has passed.
func (r TokenRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// TokenInfo is the listing view of a registry entry. Token carries the
// full token string; callers preview it before display.
type TokenInfo struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Scopes    []string  `json:"scopes"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// AccessGrant is the result of a successful token verification.
type AccessGrant struct {
	UserID string   `json:"user_id"`
	Scopes []string `json:"scopes"`
}

// HasScope reports whether the grant carries the named scope.
func (g AccessGrant) HasScope(scope string) bool {
	for _, s := range g.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

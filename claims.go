package accounts

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the authenticated view of a principal carried by access
// tokens. Roles is a sorted set of effective role names.
type SessionClaims struct {
	Subject   string        `json:"sub"`
	Kind      PrincipalKind `json:"kind"`
	OwnerID   string        `json:"owner_id,omitempty"`
	Username  string        `json:"username"`
	Email     string        `json:"email"`
	Roles     []string      `json:"roles"`
	IssuedAt  time.Time     `json:"iat,omitempty"`
	ExpiresAt time.Time     `json:"exp,omitempty"`
}

// NewSessionClaims builds claims for p holding roles.
func NewSessionClaims(p *Principal, roles []string) SessionClaims {
	c := SessionClaims{
		Subject:  p.ID.String(),
		Kind:     p.Kind,
		Username: p.Username,
		Email:    p.Email,
		Roles:    roleSet(roles),
	}
	if p.OwnerID != nil {
		c.OwnerID = p.OwnerID.String()
	}
	return c
}

// HasRole reports whether role is in the claim set.
func (c SessionClaims) HasRole(role string) bool {
	return role != "" && slices.Contains(c.Roles, role)
}

// JWTClaims is the signed representation of SessionClaims.
type JWTClaims struct {
	jwt.RegisteredClaims
	UID      string         `json:"uid,omitempty"`
	Kind     string         `json:"kind,omitempty"`
	OwnerID  string         `json:"oid,omitempty"`
	Username string         `json:"usr,omitempty"`
	Email    string         `json:"eml,omitempty"`
	Roles    []string       `json:"roles"`
	Metadata map[string]any `json:"metadata,omitempty"` // extension payload
}

// Session converts the signed claims back to SessionClaims.
func (c *JWTClaims) Session() SessionClaims {
	out := SessionClaims{
		Subject:  c.RegisteredClaims.Subject,
		Kind:     PrincipalKind(c.Kind),
		OwnerID:  c.OwnerID,
		Username: c.Username,
		Email:    c.Email,
		Roles:    roleSet(c.Roles),
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}

// roleSet sorts and de-duplicates role names.
func roleSet(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r != "" {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PrincipalKind discriminates the two account kinds stored in principals.
type PrincipalKind string

const (
	// KindOwner is a top-level account that may own workers.
	KindOwner PrincipalKind = "owner"
	// KindWorker is a subordinate account owned by exactly one owner.
	KindWorker PrincipalKind = "worker"
)

// PrincipalState is derived from the active/deleted flags.
type PrincipalState string

const (
	StatePendingVerification PrincipalState = "pending_verification"
	StateActive              PrincipalState = "active"
	StateDeleted             PrincipalState = "deleted"
	StatePurged              PrincipalState = "purged"
)

// Principal is an owner or a worker account. Kind selects which one; only
// workers carry an OwnerID.
type Principal struct {
	bun.BaseModel          `bun:"table:principals,alias:prn"`
	ID                     uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	Kind                   PrincipalKind `bun:"kind,notnull" json:"kind"`
	OwnerID                *uuid.UUID    `bun:"owner_id,type:uuid" json:"owner_id,omitempty"`
	Name                   string        `bun:"name,notnull" json:"name"`
	Username               string        `bun:"username,notnull,unique" json:"username"`
	Email                  string        `bun:"email,notnull,unique" json:"email"`
	Phone                  string        `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash           string        `bun:"password_hash,notnull" json:"-"`
	Active                 bool          `bun:"is_active,notnull" json:"active"`
	Deleted                bool          `bun:"is_deleted,notnull" json:"deleted"`
	VerificationCode       *string       `bun:"verification_code" json:"-"`
	PasswordResetToken     *string       `bun:"password_reset_token" json:"-"`
	PasswordResetExpiresAt *time.Time    `bun:"password_reset_expires_at" json:"-"`
	DeletedOn              *time.Time    `bun:"deleted_on" json:"deleted_on,omitempty"`
	CreatedAt              time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt              time.Time     `bun:"updated_at,notnull" json:"updated_at"`

	Roles []*Role `bun:"-" json:"roles,omitempty"`
}

// State reports the lifecycle state encoded by the flags.
func (p *Principal) State() PrincipalState {
	switch {
	case p == nil:
		return StatePurged
	case p.Deleted:
		return StateDeleted
	case p.Active:
		return StateActive
	default:
		return StatePendingVerification
	}
}

func (p *Principal) IsOwner() bool { return p != nil && p.Kind == KindOwner }

func (p *Principal) IsWorker() bool { return p != nil && p.Kind == KindWorker }

// OwnedBy reports whether p is a worker owned by ownerID.
func (p *Principal) OwnedBy(ownerID uuid.UUID) bool {
	return p.IsWorker() && p.OwnerID != nil && *p.OwnerID == ownerID
}

// HasPendingVerification reports whether a verification code is waiting.
func (p *Principal) HasPendingVerification() bool {
	return p != nil && p.VerificationCode != nil && *p.VerificationCode != ""
}

// Identity returns the Identity view of the principal.
func (p *Principal) Identity() Identity {
	return principalIdentity{p: p}
}

// Profile is the public view of a principal.
type Profile struct {
	ID       string        `json:"id"`
	Kind     PrincipalKind `json:"kind"`
	OwnerID  string        `json:"owner_id,omitempty"`
	Name     string        `json:"name"`
	Username string        `json:"username"`
	Email    string        `json:"email"`
	Phone    string        `json:"phone_number,omitempty"`
	Active   bool          `json:"active"`
	Roles    []string      `json:"roles"`
}

// ProfileOf builds the public profile. roles are the effective role names.
func ProfileOf(p *Principal, roles []string) Profile {
	if p == nil {
		return Profile{}
	}
	out := Profile{
		ID:       p.ID.String(),
		Kind:     p.Kind,
		Name:     p.Name,
		Username: p.Username,
		Email:    p.Email,
		Phone:    p.Phone,
		Active:   p.Active,
		Roles:    roles,
	}
	if p.OwnerID != nil {
		out.OwnerID = p.OwnerID.String()
	}
	if out.Roles == nil {
		out.Roles = []string{}
	}
	return out
}

type principalIdentity struct {
	p *Principal
}

func (i principalIdentity) ID() string {
	if i.p == nil {
		return ""
	}
	return i.p.ID.String()
}

func (i principalIdentity) Username() string {
	if i.p == nil {
		return ""
	}
	return i.p.Username
}

func (i principalIdentity) Email() string {
	if i.p == nil {
		return ""
	}
	return i.p.Email
}

func (i principalIdentity) Kind() PrincipalKind {
	if i.p == nil {
		return ""
	}
	return i.p.Kind
}

// Role is a named authority. It only counts toward a principal's authority
// while active and not deleted.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name          string    `bun:"name,notnull,unique" json:"name"`
	Active        bool      `bun:"is_active,notnull" json:"active"`
	Deleted       bool      `bun:"is_deleted,notnull" json:"deleted"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Effective reports whether the role contributes to authority.
func (r *Role) Effective() bool {
	return r != nil && r.Active && !r.Deleted
}

// PrincipalRole is the role assignment join row.
type PrincipalRole struct {
	bun.BaseModel `bun:"table:principal_roles,alias:prr"`
	PrincipalID   uuid.UUID `bun:"principal_id,pk,type:uuid"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:uuid"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

// RefreshToken is the persisted half of an opaque refresh token. Only the
// SHA-256 of the token value is stored.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rft"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	PrincipalID   uuid.UUID `bun:"principal_id,notnull,type:uuid" json:"principal_id"`
	Username      string    `bun:"username,notnull" json:"username"`
	Email         string    `bun:"email,notnull" json:"email"`
	TokenHash     string    `bun:"token_hash,notnull,unique" json:"-"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

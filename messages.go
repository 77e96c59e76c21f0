package accounts

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// usernamePattern keeps usernames disjoint from emails so an identifier
// resolves to at most one principal.
var usernamePattern = regexp.MustCompile(`^[^@]+$`)

// Registration carries the profile fields of a new owner or worker.
type Registration struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone_number"`
	Password string `json:"password"`
	// UseHashid derives the id from the email instead of a random uuid.
	UseHashid bool `json:"-"`
}

func (r Registration) Type() string {
	return "accounts.registration"
}

func (r Registration) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&r.Username, validation.Required, validation.Length(3, 64), validation.Match(usernamePattern)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (r Registration) normalized() Registration {
	r.Name = strings.TrimSpace(r.Name)
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if r.Username == "" {
		r.Username = usernameFromEmail(r.Email)
	}
	return r
}

// ProfileUpdate holds the optional profile changes. Nil fields are left alone.
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty"`
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone_number,omitempty"`
}

func (u ProfileUpdate) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Name, validation.NilOrNotEmpty, validation.Length(1, 120)),
		validation.Field(&u.Username, validation.NilOrNotEmpty, validation.Length(3, 64), validation.Match(usernamePattern)),
		validation.Field(&u.Email, validation.NilOrNotEmpty, is.Email),
	)
}

// RoleUpdate holds the optional role changes.
type RoleUpdate struct {
	Name   *string `json:"name,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

func (u RoleUpdate) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Name, validation.NilOrNotEmpty, validation.Length(1, 64)),
	)
}

func usernameFromEmail(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

package httpapi

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type validatable interface {
	Validate() error
}

func parse(c *fiber.Ctx, payload any) error {
	if err := c.BodyParser(payload); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed request body")
	}
	return nil
}

// bind parses the JSON body into payload and validates it.
func bind(c *fiber.Ctx, payload validatable) error {
	if err := parse(c, payload); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	rich := goerrors.Wrap(err, goerrors.CategoryValidation, "invalid request")
	var fields validation.Errors
	if errors.As(err, &fields) {
		details := make(map[string]any, len(fields))
		for name, ferr := range fields {
			details[name] = ferr.Error()
		}
		return rich.WithMetadata(map[string]any{"fields": details})
	}
	return rich
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid "+name)
	}
	return id, nil
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// RefreshRequest carries an opaque refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

type VerifyRequest struct {
	Code string `json:"code"`
}

func (r VerifyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required),
	)
}

// IdentifierRequest is used by flows that start from a username or email.
type IdentifierRequest struct {
	Identifier string `json:"identifier"`
}

func (r IdentifierRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, validation.Length(1, 254)),
	)
}

type PasswordResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r PasswordResetConfirmRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r PasswordChangeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
	)
}

type RoleCreateRequest struct {
	Name string `json:"name"`
}

func (r RoleCreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 64)),
	)
}

type RoleAssignmentRequest struct {
	RoleIDs []uuid.UUID `json:"role_ids"`
}

func (r RoleAssignmentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RoleIDs, validation.NotNil),
	)
}

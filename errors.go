package accounts

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	TextCodeAccountInactive      = "ACCOUNT_INACTIVE"
	TextCodeAlreadyExists        = "ACCOUNT_ALREADY_EXISTS"
	TextCodeAlreadyVerified      = "ACCOUNT_ALREADY_VERIFIED"
	TextCodeAlreadyDeleted       = "ACCOUNT_ALREADY_DELETED"
	TextCodeNotDeleted           = "ACCOUNT_NOT_DELETED"
	TextCodeNotYetSoftDeleted    = "ACCOUNT_NOT_YET_SOFT_DELETED"
	TextCodeEmptyRecycleBin      = "RECYCLE_BIN_EMPTY"
	TextCodeTokenNotFound        = "REFRESH_TOKEN_NOT_FOUND"
	TextCodeTokenExpired         = "TOKEN_EXPIRED"
	TextCodeRoleNotFound         = "ROLE_NOT_FOUND"
	TextCodeRoleExists           = "ROLE_ALREADY_EXISTS"
	TextCodePrincipalNotFound    = "PRINCIPAL_NOT_FOUND"
	TextCodeTooManyAttempts      = "TOO_MANY_ATTEMPTS"
	TextCodeInvalidTransition    = "INVALID_ACCOUNT_STATE_TRANSITION"
	TextCodeResetTokenInvalid    = "PASSWORD_RESET_TOKEN_INVALID"
	TextCodeNotOwner             = "NOT_OWNER"
	TextCodeEmptyPassword        = "EMPTY_PASSWORD"
	TextCodeImmutableClaimChange = "IMMUTABLE_CLAIM_MUTATION"
)

var (
	// ErrInvalidCredentials covers both an unknown identifier and a wrong password.
	ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
				WithTextCode(TextCodeInvalidCredentials).
				WithCode(goerrors.CodeUnauthorized)

	// ErrAccountInactive is returned when the credentials are right but the account is not active.
	ErrAccountInactive = goerrors.New("account is not active", goerrors.CategoryAuthz).
				WithTextCode(TextCodeAccountInactive).
				WithCode(goerrors.CodeForbidden)

	ErrAlreadyExists = goerrors.New("username or email already in use", goerrors.CategoryConflict).
				WithTextCode(TextCodeAlreadyExists).
				WithCode(goerrors.CodeConflict)

	ErrAlreadyVerified = goerrors.New("account already verified", goerrors.CategoryBadInput).
				WithTextCode(TextCodeAlreadyVerified).
				WithCode(goerrors.CodeBadRequest)

	ErrAlreadyDeleted = goerrors.New("account already deleted", goerrors.CategoryConflict).
				WithTextCode(TextCodeAlreadyDeleted).
				WithCode(goerrors.CodeConflict)

	ErrNotDeleted = goerrors.New("account is not deleted", goerrors.CategoryConflict).
			WithTextCode(TextCodeNotDeleted).
			WithCode(goerrors.CodeConflict)

	ErrNotYetSoftDeleted = goerrors.New("account must be soft deleted first", goerrors.CategoryConflict).
				WithTextCode(TextCodeNotYetSoftDeleted).
				WithCode(goerrors.CodeConflict)

	ErrEmptyRecycleBin = goerrors.New("recycle bin is empty", goerrors.CategoryNotFound).
				WithTextCode(TextCodeEmptyRecycleBin).
				WithCode(goerrors.CodeNotFound)

	ErrTokenNotFound = goerrors.New("refresh token not found", goerrors.CategoryAuth).
				WithTextCode(TextCodeTokenNotFound).
				WithCode(goerrors.CodeUnauthorized)

	ErrTokenExpired = goerrors.New("token expired", goerrors.CategoryAuth).
			WithTextCode(TextCodeTokenExpired).
			WithCode(goerrors.CodeUnauthorized)

	ErrRoleNotFound = goerrors.New("role not found", goerrors.CategoryNotFound).
			WithTextCode(TextCodeRoleNotFound).
			WithCode(goerrors.CodeNotFound)

	ErrRoleExists = goerrors.New("role name already in use", goerrors.CategoryConflict).
			WithTextCode(TextCodeRoleExists).
			WithCode(goerrors.CodeConflict)

	ErrPrincipalNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
				WithTextCode(TextCodePrincipalNotFound).
				WithCode(goerrors.CodeNotFound)

	ErrTooManyAttempts = goerrors.New("too many attempts, try again later", goerrors.CategoryRateLimit).
				WithTextCode(TextCodeTooManyAttempts).
				WithCode(http.StatusTooManyRequests)

	ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
				WithTextCode(TextCodeInvalidTransition).
				WithCode(goerrors.CodeBadRequest)

	ErrResetTokenInvalid = goerrors.New("invalid or expired password reset token", goerrors.CategoryValidation).
				WithTextCode(TextCodeResetTokenInvalid).
				WithCode(goerrors.CodeBadRequest)

	// ErrNotOwner is returned when an actor manages a worker it does not own.
	ErrNotOwner = goerrors.New("actor does not own this account", goerrors.CategoryAuthz).
			WithTextCode(TextCodeNotOwner).
			WithCode(goerrors.CodeForbidden)

	ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryBadInput).
				WithTextCode(TextCodeEmptyPassword).
				WithCode(goerrors.CodeBadRequest)

	ErrImmutableClaimMutation = goerrors.New("immutable claim mutated", goerrors.CategoryValidation).
					WithTextCode(TextCodeImmutableClaimChange).
					WithCode(goerrors.CodeInternal)
)

// ErrMismatchedHashAndPassword is returned by hashers when the password does not match.
var ErrMismatchedHashAndPassword = errors.New("hashedPassword is not the hash of the given password")

// asRichError re-surfaces a rich error or wraps anything else as internal.
func asRichError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

package accounts

import (
	"github.com/google/uuid"
)

// SubjectUUID parses the claims subject as a principal id.
func SubjectUUID(claims SessionClaims) (uuid.UUID, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidCredentials
	}
	return id, nil
}

// HasSubjectUUID reports whether SubjectUUID will succeed.
func HasSubjectUUID(claims SessionClaims) bool {
	_, err := SubjectUUID(claims)
	return err == nil
}

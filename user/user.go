// Package user defines the User entity and its store interface.
package user

import (
	"strings"
	"time"
)

// User is a principal identified by the composite (subjectID,
// identityProvider). Direct role assignments live in a store junction.
type User struct {
	SubjectID        string    `json:"subject_id" db:"subject_id"`
	IdentityProvider string    `json:"identity_provider" db:"identity_provider"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Key returns the composite key "subjectID:identityProvider". Identity
// providers are matched case-insensitively.
func (u *User) Key() string {
	return Key(u.SubjectID, u.IdentityProvider)
}

// Key builds the composite user key from its parts.
func Key(subjectID, identityProvider string) string {
	return subjectID + ":" + strings.ToLower(identityProvider)
}

// Package decisionlog defines the resolution audit log Entry entity.
package decisionlog

import (
	"time"

	"github.com/xraph/fabric/id"
)

// Entry is a single permission resolution audit record.
type Entry struct {
	ID               id.DecisionLogID `json:"id" db:"id"`
	SubjectID        string           `json:"subject_id" db:"subject_id"`
	IdentityProvider string           `json:"identity_provider" db:"identity_provider"`
	Grain            string           `json:"grain" db:"grain"`
	SecurableItem    string           `json:"securable_item" db:"securable_item"`
	AllowedCount     int              `json:"allowed_count" db:"allowed_count"`
	DeniedCount      int              `json:"denied_count" db:"denied_count"`
	EvalTimeNs       int64            `json:"eval_time_ns" db:"eval_time_ns"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

// QueryFilter contains filters for querying decision logs.
type QueryFilter struct {
	SubjectID        string     `json:"subject_id,omitempty"`
	IdentityProvider string     `json:"identity_provider,omitempty"`
	Grain            string     `json:"grain,omitempty"`
	SecurableItem    string     `json:"securable_item,omitempty"`
	After            *time.Time `json:"after,omitempty"`
	Before           *time.Time `json:"before,omitempty"`
	Limit            int        `json:"limit,omitempty"`
	Offset           int        `json:"offset,omitempty"`
}

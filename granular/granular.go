// Package granular defines the per-user granular permission override record
// and its store interface.
package granular

import (
	"time"

	"github.com/xraph/fabric/id"
)

// GranularPermission is a per-user override applied after role and group
// aggregation: AdditionalPermissionIDs force-allow, DeniedPermissionIDs
// force-deny, independent of any role or group membership.
type GranularPermission struct {
	UserKey                 string            `json:"user_key" db:"user_key"`
	AdditionalPermissionIDs []id.PermissionID `json:"additional_permission_ids,omitempty" db:"additional_permission_ids"`
	DeniedPermissionIDs     []id.PermissionID `json:"denied_permission_ids,omitempty" db:"denied_permission_ids"`
	CreatedAt               time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at" db:"updated_at"`
}

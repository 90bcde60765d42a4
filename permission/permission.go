// Package permission defines the Permission entity and its store interface.
package permission

import (
	"fmt"
	"time"

	"github.com/xraph/fabric/id"
)

// Effect is the action carried by a permission-to-role association or a
// granular override. Permissions themselves are effect-free capabilities;
// allow/deny lives on the association.
type Effect string

const (
	// EffectAllow grants the permission.
	EffectAllow Effect = "allow"

	// EffectDeny withholds the permission regardless of other grants.
	EffectDeny Effect = "deny"
)

// Permission is an atomic capability identified by (grain, securableItem,
// name). The triple is globally unique among active permissions.
type Permission struct {
	ID            id.PermissionID `json:"id" db:"id"`
	Grain         string          `json:"grain" db:"grain"`
	SecurableItem string          `json:"securable_item" db:"securable_item"`
	Name          string          `json:"name" db:"name"`
	IsDeleted     bool            `json:"is_deleted" db:"is_deleted"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Canonical returns the canonical string form "grain/securableItem.name"
// used as the permission identity in resolved results.
func (p *Permission) Canonical() string {
	return fmt.Sprintf("%s/%s.%s", p.Grain, p.SecurableItem, p.Name)
}

// ListFilter contains filters for listing permissions.
type ListFilter struct {
	Grain         string `json:"grain,omitempty"`
	SecurableItem string `json:"securable_item,omitempty"`
	Name          string `json:"name,omitempty"`
}

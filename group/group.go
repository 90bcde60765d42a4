// Package group defines the Group entity and its store interface.
package group

import (
	"strings"
	"time"

	"github.com/xraph/fabric/id"
)

// Source identifies where a group's membership is managed.
type Source string

const (
	// SourceCustom marks a group whose membership Fabric manages directly.
	// Only custom groups may hold users and act as parents of other groups.
	SourceCustom Source = "custom"

	// SourceDirectory marks a group synchronized from an external identity
	// provider. Directory groups may only appear as children.
	SourceDirectory Source = "directory"
)

// ParseSource normalizes a source string. Sources are compared
// case-insensitively.
func ParseSource(s string) (Source, bool) {
	switch Source(strings.ToLower(s)) {
	case SourceCustom:
		return SourceCustom, true
	case SourceDirectory:
		return SourceDirectory, true
	default:
		return "", false
	}
}

// Group is a named collection of users mapped to roles. Group names are
// unique case-insensitively among active groups. Role, user, and
// parent/child associations live in store junctions, not on the entity.
type Group struct {
	ID        id.GroupID `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Source    Source     `json:"source" db:"source"`
	IsDeleted bool       `json:"is_deleted" db:"is_deleted"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// ListFilter contains filters for listing groups.
type ListFilter struct {
	NamePrefix string `json:"name_prefix,omitempty"`
	Source     Source `json:"source,omitempty"`
}

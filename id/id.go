// Package id defines TypeID-based identity types for all Fabric entities.
//
// Every entity in Fabric uses a single ID struct with a prefix that
// identifies the entity type. IDs are K-sortable (UUIDv7-based), globally
// unique, and URL-safe in the format "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all Fabric entity types.
const (
	PrefixRole          Prefix = "role"
	PrefixPermission    Prefix = "perm"
	PrefixGroup         Prefix = "grp"
	PrefixUser          Prefix = "usr"
	PrefixSecurableItem Prefix = "item"
	PrefixClient        Prefix = "clnt"
	PrefixGranular      Prefix = "gperm"
	PrefixDecisionLog   Prefix = "dlog"
)

// ID is the primary identifier type for all Fabric entities.
// It wraps a TypeID providing a prefix-qualified, globally unique,
// sortable, URL-safe identifier in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "role_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Type aliases per entity
// ──────────────────────────────────────────────────

// RoleID is a type-safe identifier for roles (prefix: "role").
type RoleID = ID

// PermissionID is a type-safe identifier for permissions (prefix: "perm").
type PermissionID = ID

// GroupID is a type-safe identifier for groups (prefix: "grp").
type GroupID = ID

// UserID is a type-safe identifier for users (prefix: "usr").
type UserID = ID

// SecurableItemID is a type-safe identifier for securable items (prefix: "item").
type SecurableItemID = ID

// ClientID is a type-safe identifier for clients (prefix: "clnt").
type ClientID = ID

// GranularID is a type-safe identifier for granular permission records (prefix: "gperm").
type GranularID = ID

// DecisionLogID is a type-safe identifier for decision log entries (prefix: "dlog").
type DecisionLogID = ID

// ──────────────────────────────────────────────────
// Convenience constructors
// ──────────────────────────────────────────────────

// NewRoleID generates a new unique role ID.
func NewRoleID() ID { return New(PrefixRole) }

// NewPermissionID generates a new unique permission ID.
func NewPermissionID() ID { return New(PrefixPermission) }

// NewGroupID generates a new unique group ID.
func NewGroupID() ID { return New(PrefixGroup) }

// NewUserID generates a new unique user ID.
func NewUserID() ID { return New(PrefixUser) }

// NewSecurableItemID generates a new unique securable item ID.
func NewSecurableItemID() ID { return New(PrefixSecurableItem) }

// NewClientID generates a new unique client ID.
func NewClientID() ID { return New(PrefixClient) }

// NewGranularID generates a new unique granular permission ID.
func NewGranularID() ID { return New(PrefixGranular) }

// NewDecisionLogID generates a new unique decision log ID.
func NewDecisionLogID() ID { return New(PrefixDecisionLog) }

// ──────────────────────────────────────────────────
// Convenience parsers
// ──────────────────────────────────────────────────

// ParseRoleID parses a string and validates the "role" prefix.
func ParseRoleID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRole) }

// ParsePermissionID parses a string and validates the "perm" prefix.
func ParsePermissionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixPermission) }

// ParseGroupID parses a string and validates the "grp" prefix.
func ParseGroupID(s string) (ID, error) { return ParseWithPrefix(s, PrefixGroup) }

// ParseUserID parses a string and validates the "usr" prefix.
func ParseUserID(s string) (ID, error) { return ParseWithPrefix(s, PrefixUser) }

// ParseSecurableItemID parses a string and validates the "item" prefix.
func ParseSecurableItemID(s string) (ID, error) { return ParseWithPrefix(s, PrefixSecurableItem) }

// ParseClientID parses a string and validates the "clnt" prefix.
func ParseClientID(s string) (ID, error) { return ParseWithPrefix(s, PrefixClient) }

// ParseGranularID parses a string and validates the "gperm" prefix.
func ParseGranularID(s string) (ID, error) { return ParseWithPrefix(s, PrefixGranular) }

// ParseDecisionLogID parses a string and validates the "dlog" prefix.
func ParseDecisionLogID(s string) (ID, error) { return ParseWithPrefix(s, PrefixDecisionLog) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}

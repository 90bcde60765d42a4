package fabric

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist
	// or has been deleted.
	ErrNotFound = errors.New("fabric: not found")

	// ErrAlreadyExists is returned when creating an entity whose
	// identity collides with an active one.
	ErrAlreadyExists = errors.New("fabric: already exists")

	// ErrBadRequest is returned when an operation's inputs are invalid.
	ErrBadRequest = errors.New("fabric: bad request")

	// ErrIncompatiblePermission is returned when a permission's scope
	// does not match the role it is being attached to.
	ErrIncompatiblePermission = errors.New("fabric: permission scope does not match role")

	// ErrIncompatibleRole is returned when a role cannot join a
	// hierarchy: mismatched scope or an existing parent.
	ErrIncompatibleRole = errors.New("fabric: role cannot join hierarchy")

	// ErrCyclicGroupNesting is returned when a parent/child group link
	// would create a cycle.
	ErrCyclicGroupNesting = errors.New("fabric: cyclic group nesting detected")
)

// NotFoundError reports one or more missing entities of a kind. It
// unwraps to ErrNotFound.
type NotFoundError struct {
	Kind string
	IDs  []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("fabric: %s not found: %s", e.Kind, strings.Join(e.IDs, ", "))
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AlreadyExistsError reports an identity collision. It unwraps to
// ErrAlreadyExists.
type AlreadyExistsError struct {
	Kind string
	ID   string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("fabric: %s %q already exists", e.Kind, e.ID)
}

func (e *AlreadyExistsError) Unwrap() error { return ErrAlreadyExists }

// IncompatiblePermissionError reports a permission whose scope does not
// match the target role. It unwraps to ErrIncompatiblePermission.
type IncompatiblePermissionError struct {
	RoleID       string
	PermissionID string
	Detail       string
}

func (e *IncompatiblePermissionError) Error() string {
	return fmt.Sprintf("fabric: permission %s incompatible with role %s: %s", e.PermissionID, e.RoleID, e.Detail)
}

func (e *IncompatiblePermissionError) Unwrap() error { return ErrIncompatiblePermission }

// IncompatibleRoleError reports a role that cannot be linked into a
// hierarchy. It unwraps to ErrIncompatibleRole.
type IncompatibleRoleError struct {
	ParentID string
	ChildID  string
	Detail   string
}

func (e *IncompatibleRoleError) Error() string {
	return fmt.Sprintf("fabric: role %s incompatible as child of %s: %s", e.ChildID, e.ParentID, e.Detail)
}

func (e *IncompatibleRoleError) Unwrap() error { return ErrIncompatibleRole }

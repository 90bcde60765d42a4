// Package store defines the aggregate persistence interface. Each subsystem
// (grain, client, securableitem, permission, role, group, user, granular,
// decisionlog) defines its own store interface. The composite Store composes
// them all. Backends: Postgres, SQLite, and Memory.
package store

import (
	"context"

	"github.com/xraph/fabric/client"
	"github.com/xraph/fabric/decisionlog"
	"github.com/xraph/fabric/grain"
	"github.com/xraph/fabric/granular"
	"github.com/xraph/fabric/group"
	"github.com/xraph/fabric/permission"
	"github.com/xraph/fabric/role"
	"github.com/xraph/fabric/securableitem"
	"github.com/xraph/fabric/user"
)

// Store is the aggregate persistence interface. Each subsystem store is a
// composable interface; a single backend (postgres, sqlite, memory)
// implements all of them.
type Store interface {
	grain.Store
	client.Store
	securableitem.Store
	permission.Store
	role.Store
	group.Store
	user.Store
	granular.Store
	decisionlog.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

package client

import (
	"context"

	"github.com/xraph/fabric/id"
)

// Store defines persistence operations for clients.
// Deletes are soft: deleted clients are excluded from reads.
type Store interface {
	// CreateClient persists a new client.
	CreateClient(ctx context.Context, c *Client) error

	// GetClient retrieves an active client by ID.
	GetClient(ctx context.Context, clientID id.ClientID) (*Client, error)

	// ListClients returns all active clients.
	ListClients(ctx context.Context) ([]*Client, error)

	// UpdateClient persists changes to a client.
	UpdateClient(ctx context.Context, c *Client) error

	// DeleteClient soft-deletes a client.
	DeleteClient(ctx context.Context, clientID id.ClientID) error
}

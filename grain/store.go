package grain

import "context"

// Store defines persistence operations for grains.
type Store interface {
	// CreateGrain persists a new grain.
	CreateGrain(ctx context.Context, g *Grain) error

	// GetGrain retrieves a grain by name.
	GetGrain(ctx context.Context, name string) (*Grain, error)

	// ListGrains returns all grains.
	ListGrains(ctx context.Context) ([]*Grain, error)

	// ListSharedGrains returns the grains flagged shared.
	ListSharedGrains(ctx context.Context) ([]*Grain, error)
}

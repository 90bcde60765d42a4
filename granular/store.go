package granular

import "context"

// Store defines persistence operations for granular permission records.
type Store interface {
	// GetGranular retrieves the override record for a user key.
	GetGranular(ctx context.Context, userKey string) (*GranularPermission, error)

	// SetGranular creates or replaces the override record for its user key.
	SetGranular(ctx context.Context, g *GranularPermission) error
}

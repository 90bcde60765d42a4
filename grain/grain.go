// Package grain defines the Grain entity and its store interface.
// A grain is a top-level authorization scope ("app", "patient") that roots
// a securable item tree.
package grain

import "time"

// Grain is a named top-level scope. Grains flagged shared contribute their
// roles to resolution requests that omit a grain.
type Grain struct {
	Name      string    `json:"name" db:"name"`
	IsShared  bool      `json:"is_shared" db:"is_shared"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

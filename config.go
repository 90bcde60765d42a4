package fabric

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GrainSpec declares a top-level grain seeded at engine start.
type GrainSpec struct {
	Name   string `json:"name" yaml:"name"`
	Shared bool   `json:"shared,omitempty" yaml:"shared,omitempty"`
}

// Config holds configuration for the Fabric engine.
type Config struct {
	// TopLevelGrains are seeded into the store on Start. Grains marked
	// shared contribute their roles to grain-less resolutions.
	TopLevelGrains []GrainSpec `json:"top_level_grains,omitempty" yaml:"top_level_grains,omitempty"`

	// SuperAdminRoles are role names exempt from scope filtering: a
	// user holding one resolves permissions across every scope.
	SuperAdminRoles []string `json:"super_admin_roles,omitempty" yaml:"super_admin_roles,omitempty"`

	// MaxRoleDepth caps the role ancestor walk. Defaults to 20.
	MaxRoleDepth int `json:"max_role_depth,omitempty" yaml:"max_role_depth,omitempty"`

	// LogDecisions enables persisting an audit entry per resolution.
	LogDecisions bool `json:"log_decisions,omitempty" yaml:"log_decisions,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRoleDepth: 20,
	}
}

// LoadConfig reads a YAML config file. Unset fields keep their
// DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("fabric: read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("fabric: parse config: %w", err)
	}
	if cfg.MaxRoleDepth <= 0 {
		cfg.MaxRoleDepth = 20
	}
	return cfg, nil
}

// isSuperAdminRole reports whether the role name is configured as a
// super-admin role.
func (c Config) isSuperAdminRole(name string) bool {
	for _, r := range c.SuperAdminRoles {
		if r == name {
			return true
		}
	}
	return false
}

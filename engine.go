package fabric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/fabric/grain"
	"github.com/xraph/fabric/plugin"
	"github.com/xraph/fabric/store"
)

// Engine is the central authorization engine. It manages grains,
// clients, securable items, roles, permissions, groups, and users, and
// resolves effective permission sets.
type Engine struct {
	store   store.Store
	cache   Cache
	plugins *plugin.Registry
	logger  *slog.Logger
	metrics *Metrics
	config  Config
}

// NewEngine creates a new Fabric engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: slog.Default(),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, errors.New("fabric: store is required")
	}
	if e.config.MaxRoleDepth <= 0 {
		e.config.MaxRoleDepth = 20
	}
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry (may be nil).
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Start runs store migrations and seeds the configured top-level
// grains.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return fmt.Errorf("fabric: migrate: %w", err)
	}
	for _, spec := range e.config.TopLevelGrains {
		_, err := e.store.GetGrain(ctx, spec.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("fabric: seed grain %q: %w", spec.Name, err)
		}
		now := time.Now().UTC()
		g := &grain.Grain{Name: spec.Name, IsShared: spec.Shared, CreatedAt: now, UpdatedAt: now}
		if err := e.store.CreateGrain(ctx, g); err != nil {
			return fmt.Errorf("fabric: seed grain %q: %w", spec.Name, err)
		}
		e.logger.Info("seeded grain", slog.String("grain", spec.Name), slog.Bool("shared", spec.Shared))
	}
	return nil
}

// Stop performs graceful shutdown, notifying plugins.
func (e *Engine) Stop(ctx context.Context) error {
	if e.plugins != nil {
		e.plugins.EmitShutdown(ctx)
	}
	return nil
}

package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/xraph/fabric/id"
	"github.com/xraph/fabric/role"
)

// recorder implements a subset of hooks and counts invocations.
type recorder struct {
	roleCreated  int
	roleDeleted  int
	shutdowns    int
	roleAssigned int
	err          error
}

func (p *recorder) Name() string { return "recorder" }

func (p *recorder) OnRoleCreated(_ context.Context, _ *role.Role) error {
	p.roleCreated++
	return p.err
}

func (p *recorder) OnRoleDeleted(_ context.Context, _ id.RoleID) error {
	p.roleDeleted++
	return p.err
}

func (p *recorder) OnRoleAssigned(_ context.Context, _ string, _ id.RoleID) error {
	p.roleAssigned++
	return p.err
}

func (p *recorder) OnShutdown(_ context.Context) error {
	p.shutdowns++
	return p.err
}

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistryDispatchesToImplementedHooks(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	p := &recorder{}
	r.Register(p)

	r.EmitRoleCreated(ctx, &role.Role{ID: id.NewRoleID()})
	r.EmitRoleDeleted(ctx, id.NewRoleID())
	r.EmitRoleAssigned(ctx, "alice:okta", id.NewRoleID())
	r.EmitShutdown(ctx)

	// Hooks the plugin does not implement are simply not dispatched.
	r.EmitGroupDeleted(ctx, id.NewGroupID())
	r.EmitBeforeResolve(ctx, nil)

	if p.roleCreated != 1 || p.roleDeleted != 1 || p.roleAssigned != 1 || p.shutdowns != 1 {
		t.Fatalf("unexpected hook counts: %+v", p)
	}
}

func TestRegistryHookErrorsDoNotPropagate(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	failing := &recorder{err: errors.New("boom")}
	healthy := &recorder{}
	r.Register(failing)
	r.Register(healthy)

	// A failing hook is logged and the remaining plugins still run.
	r.EmitRoleCreated(ctx, &role.Role{ID: id.NewRoleID()})

	if failing.roleCreated != 1 || healthy.roleCreated != 1 {
		t.Fatalf("expected both plugins invoked, got %d / %d", failing.roleCreated, healthy.roleCreated)
	}
}

func TestRegistryPluginsOrder(t *testing.T) {
	r := newTestRegistry()
	first := &recorder{}
	second := &recorder{}
	r.Register(first)
	r.Register(second)

	plugins := r.Plugins()
	if len(plugins) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(plugins))
	}
	if plugins[0] != Plugin(first) || plugins[1] != Plugin(second) {
		t.Fatal("plugins must be kept in registration order")
	}
}

package fabric

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/xraph/fabric/store/memory"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithStore(memory.New()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	eng, err := NewEngine(append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return eng
}

func seedGrain(t *testing.T, eng *Engine, name string, shared bool) {
	t.Helper()
	if _, err := eng.CreateGrain(context.Background(), name, shared); err != nil {
		t.Fatal(err)
	}
}

func TestNewEngine_RequiresStore(t *testing.T) {
	_, err := NewEngine()
	if err == nil {
		t.Fatal("expected error when store is nil")
	}
}

func TestStartSeedsGrains(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, WithConfig(Config{
		TopLevelGrains: []GrainSpec{
			{Name: "document"},
			{Name: "hosts", Shared: true},
		},
	}))

	if err := eng.Start(ctx); err != nil {
		t.Fatal(err)
	}

	g, err := eng.Store().GetGrain(ctx, "hosts")
	if err != nil {
		t.Fatal(err)
	}
	if !g.IsShared {
		t.Fatal("hosts should be shared")
	}

	// Restart does not duplicate or reset existing grains.
	if err := eng.Start(ctx); err != nil {
		t.Fatal(err)
	}
	grains, err := eng.ListGrains(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(grains) != 2 {
		t.Fatalf("expected 2 grains, got %d", len(grains))
	}
}

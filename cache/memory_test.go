package cache

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/fabric"
)

func TestMemoryCacheHitMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(time.Minute))

	req := &fabric.ResolveRequest{
		SubjectID:        "u1",
		IdentityProvider: "okta",
		Grain:            "document",
	}
	result := &fabric.ResolveResult{AllowedPermissions: []string{"document/.read"}}

	// Miss
	_, ok := c.Get(ctx, req)
	if ok {
		t.Fatal("expected cache miss")
	}

	// Set + Hit
	c.Set(ctx, req, result)
	got, ok := c.Get(ctx, req)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got.AllowedPermissions) != 1 {
		t.Fatalf("expected 1 allowed permission, got %d", len(got.AllowedPermissions))
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(1 * time.Millisecond))

	req := &fabric.ResolveRequest{SubjectID: "u1", IdentityProvider: "okta", Grain: "document"}
	c.Set(ctx, req, &fabric.ResolveResult{})
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(ctx, req)
	if ok {
		t.Fatal("expected cache miss after TTL expiry")
	}
}

func TestMemoryCacheGroupsAffectKey(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	plain := &fabric.ResolveRequest{SubjectID: "u1", IdentityProvider: "okta", Grain: "document"}
	withGroups := &fabric.ResolveRequest{
		SubjectID:        "u1",
		IdentityProvider: "okta",
		Grain:            "document",
		UserGroups:       []string{"admins"},
	}

	c.Set(ctx, plain, &fabric.ResolveResult{})
	if _, ok := c.Get(ctx, withGroups); ok {
		t.Fatal("requests with different caller groups must not share an entry")
	}

	// Order and case of caller groups do not matter.
	c.Set(ctx, withGroups, &fabric.ResolveResult{})
	equivalent := &fabric.ResolveRequest{
		SubjectID:        "u1",
		IdentityProvider: "okta",
		Grain:            "document",
		UserGroups:       []string{"Admins"},
	}
	if _, ok := c.Get(ctx, equivalent); !ok {
		t.Fatal("group name case must not change the cache key")
	}
}

func TestMemoryCacheInvalidateSubject(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	req1 := &fabric.ResolveRequest{SubjectID: "u1", IdentityProvider: "okta", Grain: "document"}
	req2 := &fabric.ResolveRequest{SubjectID: "u2", IdentityProvider: "okta", Grain: "document"}

	c.Set(ctx, req1, &fabric.ResolveResult{})
	c.Set(ctx, req2, &fabric.ResolveResult{})

	c.InvalidateSubject(ctx, "u1", "okta")

	if _, ok := c.Get(ctx, req1); ok {
		t.Fatal("u1 should be invalidated")
	}
	if _, ok := c.Get(ctx, req2); !ok {
		t.Fatal("u2 should still be cached")
	}
}

func TestMemoryCacheInvalidateAll(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	req := &fabric.ResolveRequest{SubjectID: "u1", IdentityProvider: "okta", Grain: "document"}
	c.Set(ctx, req, &fabric.ResolveResult{})
	c.InvalidateAll(ctx)

	if _, ok := c.Get(ctx, req); ok {
		t.Fatal("expected empty cache after InvalidateAll")
	}
}

func TestMemoryCacheMaxSize(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithMaxSize(2))

	for i := 0; i < 5; i++ {
		req := &fabric.ResolveRequest{
			SubjectID:        "u1",
			IdentityProvider: "okta",
			Grain:            "document",
			SecurableItem:    string(rune('a' + i)),
		}
		c.Set(ctx, req, &fabric.ResolveResult{})
	}

	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()
	if size > 2 {
		t.Fatalf("expected max 2 entries, got %d", size)
	}
}

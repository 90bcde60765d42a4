package fabric

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/xraph/fabric/group"
)

// MigrationResult reports the outcome of a duplicate-group migration
// run. Errors carries per-record failures; the run itself never fails.
type MigrationResult struct {
	// DuplicateSets is the number of case-insensitive name collisions
	// found among active groups.
	DuplicateSets int `json:"duplicate_sets"`

	// GroupsMerged is the number of duplicate groups folded into their
	// survivors and soft-deleted.
	GroupsMerged int `json:"groups_merged"`

	// Errors lists per-record failures, each naming the group it
	// concerns. Failed records are left untouched for the next run.
	Errors []string `json:"errors,omitempty"`
}

// MigrateDuplicateGroups folds active groups whose names collide
// case-insensitively into a single survivor per name: the oldest group
// (ties broken by ID). The survivor absorbs the duplicates' role
// mappings, members, and group links; the duplicates are soft-deleted.
//
// The run is idempotent and never returns an error: per-record failures
// are collected in the result and retried on the next run.
func (e *Engine) MigrateDuplicateGroups(ctx context.Context) *MigrationResult {
	result := &MigrationResult{}

	groups, err := e.store.ListGroups(ctx, nil)
	if err != nil {
		result.Errors = append(result.Errors, "list groups: "+err.Error())
		return result
	}

	byName := make(map[string][]*group.Group)
	for _, g := range groups {
		key := strings.ToLower(g.Name)
		byName[key] = append(byName[key], g)
	}
	names := make([]string, 0, len(byName))
	for name, set := range byName {
		if len(set) > 1 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		set := byName[name]
		sort.Slice(set, func(i, j int) bool {
			if !set[i].CreatedAt.Equal(set[j].CreatedAt) {
				return set[i].CreatedAt.Before(set[j].CreatedAt)
			}
			return set[i].ID.String() < set[j].ID.String()
		})
		survivor, duplicates := set[0], set[1:]
		result.DuplicateSets++

		for _, dup := range duplicates {
			if err := e.mergeGroup(ctx, survivor, dup); err != nil {
				result.Errors = append(result.Errors, "merge group "+dup.ID.String()+": "+err.Error())
				continue
			}
			result.GroupsMerged++
			e.logger.Info("merged duplicate group",
				slog.String("survivor", survivor.ID.String()),
				slog.String("duplicate", dup.ID.String()),
				slog.String("name", survivor.Name))
		}
	}

	if result.GroupsMerged > 0 {
		e.metrics.observeGroupsMerged(result.GroupsMerged)
		e.invalidateAll(ctx)
	}
	if e.plugins != nil {
		e.plugins.EmitGroupsMigrated(ctx, result)
	}
	return result
}

// mergeGroup moves every association of dup onto survivor, then
// soft-deletes dup. Attach operations are upserts, so re-running after
// a partial failure converges.
func (e *Engine) mergeGroup(ctx context.Context, survivor, dup *group.Group) error {
	roleIDs, err := e.store.ListGroupRoleIDs(ctx, dup.ID)
	if err != nil {
		return err
	}
	for _, rid := range roleIDs {
		if err := e.store.AttachRoleToGroup(ctx, survivor.ID, rid); err != nil {
			return err
		}
	}

	userKeys, err := e.store.ListGroupUserKeys(ctx, dup.ID)
	if err != nil {
		return err
	}
	for _, key := range userKeys {
		if err := e.store.AttachUserToGroup(ctx, survivor.ID, key); err != nil {
			return err
		}
	}

	children, err := e.store.ListChildGroups(ctx, dup.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.ID == survivor.ID {
			continue
		}
		if err := e.store.AttachChildGroup(ctx, survivor.ID, child.ID); err != nil {
			return err
		}
	}

	parents, err := e.store.ListParentGroups(ctx, dup.ID)
	if err != nil {
		return err
	}
	for _, parent := range parents {
		if parent.ID == survivor.ID {
			continue
		}
		if err := e.store.AttachChildGroup(ctx, parent.ID, survivor.ID); err != nil {
			return err
		}
	}

	return e.store.DeleteGroup(ctx, dup.ID)
}

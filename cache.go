package fabric

import "context"

// Cache provides caching for permission resolution results.
type Cache interface {
	// Get returns a cached resolution result, if available.
	Get(ctx context.Context, req *ResolveRequest) (*ResolveResult, bool)

	// Set stores a resolution result in the cache.
	Set(ctx context.Context, req *ResolveRequest, result *ResolveResult)

	// InvalidateSubject removes all cached results for a user.
	InvalidateSubject(ctx context.Context, subjectID, identityProvider string)

	// InvalidateAll removes every cached result. Used after bulk
	// mutations such as a duplicate-group migration.
	InvalidateAll(ctx context.Context)
}

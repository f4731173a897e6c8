package lending

import "context"

// =============================================================================
// VERSION COUNTER - "something changed" signal for polling clients
// =============================================================================

// VersionCounter is a shared monotonic integer. It starts at 1 on first
// access and advances on every committed loan change. It carries no payload.
type VersionCounter interface {
	Current(ctx context.Context) (int64, error)
	Bump(ctx context.Context) (int64, error)
}

// StoreVersions exposes a Store's built-in counter as a VersionCounter.
type StoreVersions struct {
	Store Store
}

func (v StoreVersions) Current(ctx context.Context) (int64, error) {
	return v.Store.CurrentVersion(ctx)
}

func (v StoreVersions) Bump(ctx context.Context) (int64, error) {
	return v.Store.BumpVersion(ctx)
}

var _ VersionCounter = StoreVersions{}

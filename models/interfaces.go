package models

import "context"

// SnapshotSource yields the latest upstream snapshot for an instrument.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, instrument string) (Snapshot, error)
}

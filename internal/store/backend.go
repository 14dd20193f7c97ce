package store

import (
	"context"
	"fmt"

	"github.com/Alias1177/AccuracyTracker/models"
)

// Backend is a key/value store holding one serialized sequence per key.
type Backend interface {
	Name() string
	// Read returns false when nothing is stored under key.
	Read(ctx context.Context, key string) ([]byte, bool, error)
	Write(ctx context.Context, key string, payload []byte) error
	Close() error
}

// Key returns the storage key of one instrument/timeframe sequence
func Key(instrument string, tf models.Timeframe) string {
	return fmt.Sprintf("pred_history_%s_%s", instrument, tf)
}

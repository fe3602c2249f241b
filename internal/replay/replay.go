// Package replay remembers webhook signatures that were already accepted so a
// captured delivery cannot be replayed. Only signature fingerprints are kept,
// never message content.
package replay

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

// Supported backends.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// DefaultRetention is how long fingerprints are kept when unset.
const DefaultRetention = 24 * time.Hour

// Guard records signature fingerprints.
type Guard interface {
	// Seen records key at the given time and reports whether it was already present.
	Seen(ctx context.Context, key string, at time.Time) (bool, error)
	// Forget removes key so a delivery that was not acted on can be retried.
	Forget(ctx context.Context, key string) error
	// Prune drops entries recorded before cutoff.
	Prune(ctx context.Context, cutoff time.Time) error
	Close() error
}

// Key fingerprints a signature header value.
func Key(header string) string {
	sum := blake3.Sum256([]byte(header))
	return hex.EncodeToString(sum[:])
}

// Open opens the guard for backend at path.
func Open(ctx context.Context, backend, path string) (Guard, error) {
	switch backend {
	case "", BackendSQLite:
		s, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBolt:
		s, err := OpenBolt(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown replay backend %q", backend)
	}
}

// RunPruner prunes g every interval until ctx is done.
func RunPruner(ctx context.Context, g Guard, retention, interval time.Duration, onErr func(error)) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := g.Prune(ctx, now.Add(-retention)); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}

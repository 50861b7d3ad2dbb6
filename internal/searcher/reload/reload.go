// Package reload keeps a running searcher on the latest index. It consumes
// index.complete events and swaps the announced index in.
package reload

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/logger"
)

// Target is the engine whose index gets replaced.
type Target interface {
	Reload(dir string, grace time.Duration) error
	Manifest() store.Manifest
}

// Invalidator drops cached results of the previous index. It may be nil.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

type Options struct {
	// Dir is the directory the searcher serves. Events announcing another
	// directory are ignored.
	Dir   string
	Grace time.Duration
	// OnReload, if set, is called with the new manifest.
	OnReload func(store.Manifest)
}

// HandleMessage returns a Kafka MessageHandler that reloads target. Events
// that cannot be decoded, name another directory or the run already served
// are skipped without error so they are not redelivered.
func HandleMessage(target Target, cache Invalidator, opts Options) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		log := logger.FromContext(ctx).With("component", "index-reloader")
		event, err := kafka.DecodeJSON[analytics.IndexCompleteEvent](value)
		if err != nil {
			log.Error("failed to decode index.complete event", "error", err, "key", string(key))
			return nil
		}
		ctx = logger.WithRunID(ctx, event.RunID)
		log = log.With("run_id", event.RunID)
		if event.IndexDir != "" && !sameDir(event.IndexDir, opts.Dir) {
			log.Debug("ignoring index built elsewhere", "dir", event.IndexDir)
			return nil
		}
		if event.RunID == target.Manifest().RunID {
			return nil
		}

		if err := target.Reload(opts.Dir, opts.Grace); err != nil {
			return fmt.Errorf("reloading run %s: %w", event.RunID, err)
		}
		manifest := target.Manifest()
		if cache != nil {
			if n, err := cache.Invalidate(ctx); err != nil {
				log.Warn("stale cache entries left after reload", "error", err)
			} else {
				log.Info("query cache invalidated", "keys", n)
			}
		}
		if opts.OnReload != nil {
			opts.OnReload(manifest)
		}
		log.Info("serving new index", "terms", manifest.Terms, "documents", manifest.Documents)
		return nil
	}
}

package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/kafka"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

type CollectorOptions struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func (o CollectorOptions) withDefaults() CollectorOptions {
	if o.BufferSize <= 0 {
		o.BufferSize = 10000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = time.Second
	}
	return o
}

// Collector buffers search events and publishes them in batches from one
// goroutine, so request handlers never wait on the broker. Events arriving
// while the buffer is full are dropped and counted.
type Collector struct {
	publisher Publisher
	opts      CollectorOptions
	eventCh   chan SearchEvent
	dropped   atomic.Int64
	logger    *slog.Logger
	done      chan struct{}
}

func NewCollector(publisher Publisher, opts CollectorOptions) *Collector {
	opts = opts.withDefaults()
	return &Collector{
		publisher: publisher,
		opts:      opts,
		eventCh:   make(chan SearchEvent, opts.BufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

// Start publishes until Close is called or ctx ends. Buffered events are
// flushed either way.
func (c *Collector) Start(ctx context.Context) {
	go c.loop(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", c.opts.BufferSize,
		"batch_size", c.opts.BatchSize,
		"flush_interval", c.opts.FlushInterval,
	)
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.opts.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := c.publisher.Publish(ctx, batch...); err != nil {
			c.logger.Error("failed to publish analytics batch", "events", len(batch), "error", err)
		}
		batch = batch[:0]
	}
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				flush(context.Background())
				return
			}
			batch = append(batch, toMessage(event))
			if len(batch) >= c.opts.BatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case event, ok := <-c.eventCh:
					if !ok {
						drained = true
						break
					}
					batch = append(batch, toMessage(event))
				default:
					drained = true
				}
			}
			flush(context.Background())
			return
		}
	}
}

func toMessage(event SearchEvent) kafka.Event {
	return kafka.Event{Key: string(event.Type), Type: string(event.Type), Value: event}
}

func (c *Collector) Track(event SearchEvent) {
	select {
	case c.eventCh <- event:
	default:
		if n := c.dropped.Add(1); n == 1 || n%1000 == 0 {
			c.logger.Warn("analytics buffer full, events dropped", "dropped_total", n)
		}
	}
}

// Dropped is the number of events discarded because the buffer was full.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits for the final flush.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

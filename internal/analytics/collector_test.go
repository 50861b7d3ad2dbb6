package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	calls  int
	events []kafka.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.events = append(p.events, events...)
	return p.err
}

func (p *recordingPublisher) snapshot() (int, []kafka.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls, append([]kafka.Event(nil), p.events...)
}

func TestCollectorPublishesOnClose(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, CollectorOptions{BufferSize: 16, FlushInterval: time.Hour})
	c.Start(context.Background())

	c.Track(SearchEvent{Type: EventSearch, Query: "cat"})
	c.Track(SearchEvent{Type: EventZeroResult, Query: "unicorn"})
	c.Close()

	calls, events := pub.snapshot()
	assert.Equal(t, 1, calls)
	require.Len(t, events, 2)
	assert.Equal(t, "search", events[0].Key)
	assert.Equal(t, "zero_result", events[1].Type)
	assert.Equal(t, "unicorn", events[1].Value.(SearchEvent).Query)
}

func TestCollectorBatches(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, CollectorOptions{BufferSize: 16, BatchSize: 2, FlushInterval: time.Hour})
	for i := 0; i < 5; i++ {
		c.Track(SearchEvent{Type: EventSearch})
	}
	c.Start(context.Background())
	c.Close()

	calls, events := pub.snapshot()
	assert.Equal(t, 3, calls)
	assert.Len(t, events, 5)
}

func TestCollectorFlushesOnInterval(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, CollectorOptions{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	c.Start(context.Background())
	defer c.Close()

	c.Track(SearchEvent{Type: EventSearch, Query: "cat"})
	assert.Eventually(t, func() bool {
		_, events := pub.snapshot()
		return len(events) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, CollectorOptions{BufferSize: 1})

	c.Track(SearchEvent{Query: "kept"})
	c.Track(SearchEvent{Query: "dropped"})
	c.Start(context.Background())
	c.Close()

	_, events := pub.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "kept", events[0].Value.(SearchEvent).Query)
	assert.Equal(t, int64(1), c.Dropped())
}

func TestCollectorDrainsOnCancel(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	c := NewCollector(pub, CollectorOptions{BufferSize: 8})
	ctx, cancel := context.WithCancel(context.Background())

	c.Track(SearchEvent{Query: "a"})
	c.Track(SearchEvent{Query: "b"})
	cancel()
	c.Start(ctx)
	<-c.done

	_, events := pub.snapshot()
	assert.Len(t, events, 2)
}

package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/resilience"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKafkaConfig() config.KafkaConfig {
	return config.KafkaConfig{Brokers: []string{"localhost:9092"}, ConsumerGroup: "test"}
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []int64
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{queue: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	if len(r.queue) == 0 {
		select {
		case <-r.drained:
		default:
			close(r.drained)
		}
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func runUntilDrained(t *testing.T, c *Consumer, r *fakeReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	select {
	case <-r.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain the queue")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestConsumerHandlesAndCommits(t *testing.T) {
	r := newFakeReader(
		kafka.Message{Offset: 1, Key: []byte("a"), Value: []byte("1")},
		kafka.Message{Offset: 2, Key: []byte("b"), Value: []byte("2")},
	)
	var seen []string
	c := newConsumer(r, "index.complete", func(_ context.Context, key, _ []byte) error {
		seen = append(seen, string(key))
		return nil
	})
	runUntilDrained(t, c, r)

	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, []int64{1, 2}, r.commits())
}

func TestConsumerRetriesThenSkips(t *testing.T) {
	r := newFakeReader(kafka.Message{Offset: 7})
	calls := 0
	c := newConsumer(r, "index.complete", func(context.Context, []byte, []byte) error {
		calls++
		return errors.New("index not readable yet")
	})
	c.retry = resilience.RetryConfig{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	runUntilDrained(t, c, r)

	assert.Equal(t, 3, calls)
	assert.Equal(t, []int64{7}, r.commits())
}

func TestConsumerRetrySucceeds(t *testing.T) {
	r := newFakeReader(kafka.Message{Offset: 3})
	calls := 0
	c := newConsumer(r, "index.complete", func(context.Context, []byte, []byte) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	c.retry = resilience.RetryConfig{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	runUntilDrained(t, c, r)
	assert.Equal(t, 2, calls)
}

func TestConsumerSurvivesFetchErrors(t *testing.T) {
	r := newFakeReader(kafka.Message{Offset: 9})
	r.fetchErrs = []error{errors.New("connection reset")}
	c := newConsumer(r, "index.complete", func(context.Context, []byte, []byte) error { return nil })
	c.backoff = time.Millisecond
	runUntilDrained(t, c, r)
	assert.Equal(t, []int64{9}, r.commits())
}

func TestConsumerStopsOnCancel(t *testing.T) {
	r := newFakeReader()
	c := newConsumer(r, "index.complete", func(context.Context, []byte, []byte) error { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, c.Start(ctx))
	assert.NoError(t, c.Close())
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		RunID string `json:"run_id"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"run_id":"r1"}`))
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RunID)

	_, err = DecodeJSON[payload]([]byte("{"))
	assert.Error(t, err)
}

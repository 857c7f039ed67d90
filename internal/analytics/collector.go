package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/kafka"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

const (
	defaultBatchSize     = 50
	defaultFlushInterval = time.Second
)

// Collector buffers events and publishes them in batches from a single
// goroutine so request handlers never block on Kafka. Events are dropped
// when the buffer is full.
type Collector struct {
	producer      Publisher
	eventCh       chan Event
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}

	// mu guards closed so Track never sends on a closed channel.
	mu     sync.RWMutex
	closed bool
}

func NewCollector(producer Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer:      producer,
		eventCh:       make(chan Event, bufferSize),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := c.producer.PublishBatch(ctx, batch); err != nil {
			c.logger.Error("failed to publish analytics events", "count", len(batch), "error", err)
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
			batch = append(batch, kafka.Event{Key: event.EventKey(), Value: event})
			if len(batch) >= c.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			for {
				select {
				case event, ok := <-c.eventCh:
					if !ok {
						flush(context.Background())
						return
					}
					batch = append(batch, kafka.Event{Key: event.EventKey(), Value: event})
				default:
					flush(context.Background())
					return
				}
			}
		}
	}
}

// Track enqueues event without blocking. A nil or closed Collector ignores
// events.
func (c *Collector) Track(event Event) {
	if c == nil {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.logger.Debug("analytics event dropped (collector closed)")
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for pending ones to be published.
// It is safe to call more than once and concurrently with Track. Start must
// have been called.
func (c *Collector) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

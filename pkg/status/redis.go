package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NERVsystems/geoquery/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
)

// Message is the payload published for each status text.
type Message struct {
	RequestID string    `json:"requestId,omitempty"`
	Text      string    `json:"text"`
	Time      time.Time `json:"time"`
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithQueueSize sets how many messages may wait for publication.
func WithQueueSize(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithPublishTimeout bounds each PUBLISH.
func WithPublishTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithDropHook is called for every message dropped on a full queue.
func WithDropHook(fn func()) PublisherOption {
	return func(p *Publisher) { p.onDrop = fn }
}

// Publisher is a Sink that fans status text out over Redis pub/sub so other
// processes (a chat UI backend, say) can follow a run. Emit only enqueues;
// a single worker publishes.
type Publisher struct {
	rdb       *redis.Client
	channel   string
	logger    *slog.Logger
	queueSize int
	timeout   time.Duration
	onDrop    func()

	queue chan Message
	done  chan struct{}
	mu    sync.RWMutex
	closed bool
}

// NewPublisher connects to addr and starts the publish worker. Messages go
// to the channel named channel.
func NewPublisher(ctx context.Context, addr, channel string, logger *slog.Logger, opts ...PublisherOption) (*Publisher, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	if channel == "" {
		return nil, errors.New("status channel is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	p := &Publisher{
		rdb:       rdb,
		channel:   channel,
		logger:    logger.With("component", "status"),
		queueSize: 64,
		timeout:   time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	p.queue = make(chan Message, p.queueSize)
	p.done = make(chan struct{})
	go p.run()
	return p, nil
}

// Channel returns the pub/sub channel name.
func (p *Publisher) Channel() string { return p.channel }

func (p *Publisher) Emit(ctx context.Context, text string) {
	msg := Message{RequestID: logging.RequestID(ctx), Text: text, Time: time.Now().UTC()}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- msg:
	default:
		if p.onDrop != nil {
			p.onDrop()
		}
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		payload, err := json.Marshal(msg)
		if err != nil {
			p.logger.Warn("encode status message", "error", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err = p.rdb.Publish(ctx, p.channel, payload).Err()
		cancel()
		if err != nil {
			p.logger.Warn("publish status message", "channel", p.channel, "error", err)
		}
	}
}

// Close drains queued messages, waits for the worker up to ctx and closes
// the Redis client.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-ctx.Done():
		p.logger.Warn("status publisher did not drain before shutdown")
	}
	return p.rdb.Close()
}

package audit

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ogulcanaydogan/caseprompt/internal/ledger"
	"github.com/ogulcanaydogan/caseprompt/internal/platform/logger"
	"github.com/ogulcanaydogan/caseprompt/internal/redact"
)

const publishTimeout = 5 * time.Second

// Publisher is the part of a Redis client the audit stream needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
}

// RedisPublisher fans redacted ledger events out on a Redis channel. Handle
// never blocks the ledger: events go through a bounded queue drained by one
// goroutine, and are dropped with a warning when the queue is full.
type RedisPublisher struct {
	client   Publisher
	channel  string
	redactor redact.Redactor
	log      *logger.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan []byte
	wg      sync.WaitGroup
	dropped atomic.Int64
}

func NewRedisPublisher(client Publisher, channel string, buffer int, r redact.Redactor, log *logger.Logger) *RedisPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = logger.NewNop()
	}
	p := &RedisPublisher{
		client:   client,
		channel:  channel,
		redactor: r,
		log:      log,
		queue:    make(chan []byte, buffer),
	}
	p.wg.Add(1)
	go p.drain()
	return p
}

func (p *RedisPublisher) Handle(ev ledger.Event) {
	msg, err := json.Marshal(recordFor(ev, p.redactor))
	if err != nil {
		p.log.Warn("audit event encode failed", "run_id", ev.Run.ID, "error", err)
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- msg:
	default:
		p.dropped.Add(1)
		p.log.Warn("audit queue full, event dropped", "run_id", ev.Run.ID, "channel", p.channel)
	}
}

func (p *RedisPublisher) Dropped() int64 { return p.dropped.Load() }

func (p *RedisPublisher) drain() {
	defer p.wg.Done()
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.client.Publish(ctx, p.channel, msg).Err(); err != nil {
			p.log.Warn("audit publish failed", "channel", p.channel, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (p *RedisPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

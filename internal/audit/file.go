package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"filippo.io/age"

	"github.com/ogulcanaydogan/caseprompt/internal/ledger"
	"github.com/ogulcanaydogan/caseprompt/internal/platform/logger"
	"github.com/ogulcanaydogan/caseprompt/internal/redact"
)

var (
	ErrSinkClosed = errors.New("audit file sink closed")
	ErrQueueFull  = errors.New("audit queue full")
)

// FileSink appends redacted ledger events to a JSONL file. With an age
// recipient the stream is encrypted and the file must not already exist,
// since age streams cannot be appended to. Like RedisPublisher, Handle only
// enqueues; one goroutine owns the file.
type FileSink struct {
	w        io.Writer
	closeFn  func() error
	redactor redact.Redactor
	log      *logger.Logger

	mu       sync.RWMutex
	closed   bool
	queue    chan ledger.Event
	wg       sync.WaitGroup
	dropped  atomic.Int64
	writeErr error
}

func NewFileSink(path, ageRecipient string, buffer int, r redact.Redactor, log *logger.Logger) (*FileSink, error) {
	recipient := strings.TrimSpace(ageRecipient)
	if recipient == "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open audit file: %w", err)
		}
		return newFileSink(f, f.Close, buffer, r, log), nil
	}

	rcpt, err := age.ParseX25519Recipient(recipient)
	if err != nil {
		return nil, fmt.Errorf("parse age_recipient: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open encrypted audit file: %w", err)
	}
	stream, err := age.Encrypt(f, rcpt)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("start age stream: %w", err)
	}
	closeFn := func() error {
		return errors.Join(stream.Close(), f.Close())
	}
	return newFileSink(stream, closeFn, buffer, r, log), nil
}

func newFileSink(w io.Writer, closeFn func() error, buffer int, r redact.Redactor, log *logger.Logger) *FileSink {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = logger.NewNop()
	}
	s := &FileSink{
		w:        w,
		closeFn:  closeFn,
		redactor: r,
		log:      log,
		queue:    make(chan ledger.Event, buffer),
	}
	s.wg.Add(1)
	go s.drain()
	return s
}

// Handle queues ev for writing and never waits on the file.
func (s *FileSink) Handle(ev ledger.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- ev:
		return nil
	default:
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

func (s *FileSink) Dropped() int64 { return s.dropped.Load() }

// Subscriber adapts Handle to a ledger subscription, logging dropped events.
func (s *FileSink) Subscriber() func(ledger.Event) {
	return func(ev ledger.Event) {
		if err := s.Handle(ev); err != nil {
			s.log.Warn("audit event not written", "run_id", ev.Run.ID, "error", err)
		}
	}
}

func (s *FileSink) drain() {
	defer s.wg.Done()
	enc := json.NewEncoder(s.w)
	for ev := range s.queue {
		if err := enc.Encode(recordFor(ev, s.redactor)); err != nil {
			s.log.Warn("audit file write failed", "run_id", ev.Run.ID, "error", err)
			if s.writeErr == nil {
				s.writeErr = fmt.Errorf("write audit record: %w", err)
			}
		}
	}
}

// Close stops accepting events, flushes the queue, then finalizes the age
// stream, if any, and closes the file. The first write error is returned.
func (s *FileSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
	return errors.Join(s.writeErr, s.closeFn())
}

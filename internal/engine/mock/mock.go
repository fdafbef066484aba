// Package mock provides deterministic engines for tests and local runs.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ogulcanaydogan/caseprompt/internal/engine"
)

// Engine answers every prompt with a well-formed three-line review, or with
// an all-inactive signal payload when a JSON schema is requested.
type Engine struct{}

func New() *Engine { return &Engine{} }

func (e *Engine) GenerateText(ctx context.Context, model string, messages []engine.Message, opts engine.GenerateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if opts.JSONSchema != nil {
		b, _ := json.Marshal(map[string]any{"signals": []any{}})
		return string(b), nil
	}
	var user string
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.EqualFold(messages[i].Role, "user") {
			user = messages[i].Content
			break
		}
	}
	words := strings.Fields(user)
	if len(words) > 8 {
		words = words[:8]
	}
	return fmt.Sprintf("Result: mock review by %s\nReason: %s\nEvidence: notes[0].text", model, strings.Join(words, " ")), nil
}

// Call records one scripted engine invocation.
type Call struct {
	Model    string
	Messages []engine.Message
	Opts     engine.GenerateOptions
}

type Reply struct {
	Text string
	Err  error
	// Block waits for context cancellation before returning.
	Block bool
}

// Scripted replays canned replies in order and records every call. Once the
// script is exhausted it repeats the last reply.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

// Texts is shorthand for a script of successful replies.
func Texts(texts ...string) *Scripted {
	replies := make([]Reply, 0, len(texts))
	for _, t := range texts {
		replies = append(replies, Reply{Text: t})
	}
	return NewScripted(replies...)
}

func (s *Scripted) GenerateText(ctx context.Context, model string, messages []engine.Message, opts engine.GenerateOptions) (string, error) {
	s.mu.Lock()
	idx := len(s.calls)
	s.calls = append(s.calls, Call{Model: model, Messages: append([]engine.Message(nil), messages...), Opts: opts})
	var r Reply
	switch {
	case len(s.replies) == 0:
		r = Reply{Err: fmt.Errorf("mock: no scripted reply")}
	case idx < len(s.replies):
		r = s.replies[idx]
	default:
		r = s.replies[len(s.replies)-1]
	}
	s.mu.Unlock()

	if r.Block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.Text, r.Err
}

func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Package engine is the boundary to the language-model provider.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout marks a model call that exceeded its deadline.
var ErrTimeout = errors.New("model call timed out")

type Message struct {
	Role    string
	Content string
}

type JSONSchema struct {
	Name   string
	Schema map[string]any
}

type GenerateOptions struct {
	Temperature float64
	JSONSchema  *JSONSchema
}

type Engine interface {
	GenerateText(ctx context.Context, model string, messages []Message, opts GenerateOptions) (string, error)
}

// Call runs one generation bounded by timeout. Deadline expiry is reported as
// ErrTimeout; caller cancellation is passed through unchanged.
func Call(ctx context.Context, e Engine, timeout time.Duration, model string, messages []Message, opts GenerateOptions) (string, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := e.GenerateText(callCtx, model, messages, opts)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, err)
		}
		return "", err
	}
	return out, nil
}

package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeEngine struct {
	wait time.Duration
	err  error
}

func (f fakeEngine) GenerateText(ctx context.Context, _ string, _ []Message, _ GenerateOptions) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	select {
	case <-time.After(f.wait):
		return "ok", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestCallTimeout(t *testing.T) {
	_, err := Call(context.Background(), fakeEngine{wait: time.Second}, 10*time.Millisecond, "m", nil, GenerateOptions{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCallSuccessAndPassThrough(t *testing.T) {
	out, err := Call(context.Background(), fakeEngine{}, time.Second, "m", nil, GenerateOptions{})
	if err != nil || out != "ok" {
		t.Fatalf("out=%q err=%v", out, err)
	}
	boom := errors.New("upstream 500")
	if _, err := Call(context.Background(), fakeEngine{err: boom}, time.Second, "m", nil, GenerateOptions{}); !errors.Is(err, boom) || errors.Is(err, ErrTimeout) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestCallCallerCancellationIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Call(ctx, fakeEngine{wait: time.Second}, time.Second, "m", nil, GenerateOptions{})
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrTimeout) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

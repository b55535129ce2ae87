package llm

import (
	"context"
	"fmt"
	"time"

	"algodraft/internal/logging"
)

// Invoker drives a Backend with retry. Transient failures are retried up
// to MaxRetries attempts with exponential backoff (BaseDelay, 2x per
// attempt); context cancellation stops the loop immediately.
type Invoker struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// NewInvoker returns an invoker with the standard retry policy:
// 3 attempts, 1s then 2s between them.
func NewInvoker() *Invoker {
	return &Invoker{
		MaxRetries: 3,
		BaseDelay:  time.Second,
	}
}

// Invoke runs one chat exchange through the backend, retrying failures.
// Only errors from the backend are retried; the response text, empty or
// not, is returned verbatim for the caller to interpret. The returned
// error wraps the last attempt's error and notes the attempt count.
func (inv *Invoker) Invoke(ctx context.Context, backend Backend, system, user string, history []Message) (string, error) {
	var lastErr error
	for attempt := 0; attempt < inv.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := inv.BaseDelay * time.Duration(1<<uint(attempt-1))
			logging.AgentWarn("Model call failed (attempt %d/%d), retrying in %s: %v",
				attempt, inv.MaxRetries, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		response, err := backend.Chat(ctx, system, user, history)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		return response, nil
	}
	return "", fmt.Errorf("model call failed after %d attempts: %w", inv.MaxRetries, lastErr)
}

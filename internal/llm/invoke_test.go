package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func testInvoker() *Invoker {
	return &Invoker{MaxRetries: 3, BaseDelay: time.Millisecond}
}

func TestInvokeSucceedsFirstTry(t *testing.T) {
	fake := &fakeBackend{responses: []string{"answer"}}
	got, err := testInvoker().Invoke(context.Background(), fake, "", "q", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "answer" {
		t.Errorf("got %q", got)
	}
	if fake.calls != 1 {
		t.Errorf("calls = %d, want 1", fake.calls)
	}
}

func TestInvokeRetriesTransientFailure(t *testing.T) {
	fake := &fakeBackend{
		responses: []string{"", "", "recovered"},
		errs:      []error{errors.New("boom"), errors.New("boom again"), nil},
	}
	got, err := testInvoker().Invoke(context.Background(), fake, "", "q", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "recovered" {
		t.Errorf("got %q", got)
	}
	if fake.calls != 3 {
		t.Errorf("calls = %d, want 3", fake.calls)
	}
}

func TestInvokeExhaustsRetries(t *testing.T) {
	fake := &fakeBackend{
		errs: []error{errors.New("down"), errors.New("down"), errors.New("still down")},
	}
	_, err := testInvoker().Invoke(context.Background(), fake, "", "q", nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if fake.calls != 3 {
		t.Errorf("calls = %d, want 3", fake.calls)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("error should report attempt count: %v", err)
	}
	if !strings.Contains(err.Error(), "still down") {
		t.Errorf("error should wrap the last failure: %v", err)
	}
}

func TestInvokeEmptyResponseIsNotRetried(t *testing.T) {
	fake := &fakeBackend{responses: []string{"   ", "real answer"}}
	got, err := testInvoker().Invoke(context.Background(), fake, "", "q", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "   " {
		t.Errorf("got %q, want the empty response passed through", got)
	}
	if fake.calls != 1 {
		t.Errorf("calls = %d, want 1", fake.calls)
	}
}

func TestInvokeRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fake := &fakeBackend{errs: []error{errors.New("down")}}
	_, err := (&Invoker{MaxRetries: 3, BaseDelay: time.Hour}).Invoke(ctx, fake, "", "q", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if fake.calls > 1 {
		t.Errorf("calls = %d, want at most 1 after cancellation", fake.calls)
	}
}

func TestInvokeBackoffDoubles(t *testing.T) {
	fake := &fakeBackend{
		errs: []error{errors.New("a"), errors.New("b"), nil},
		responses: []string{"", "", "ok"},
	}
	inv := &Invoker{MaxRetries: 3, BaseDelay: 10 * time.Millisecond}
	start := time.Now()
	if _, err := inv.Invoke(context.Background(), fake, "", "q", nil); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	// Two waits: 10ms + 20ms.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("elapsed %s, want at least 30ms of backoff", elapsed)
	}
}

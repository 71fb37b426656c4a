package providers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStreamSimulated_GrowingSnapshots(t *testing.T) {
	result := &GenerationResult{Content: "the quick brown fox"}

	var snapshots []string
	var completions int

	StreamSimulated(context.Background(), result, 0, StreamHandlers{
		OnToken:    func(partial string) { snapshots = append(snapshots, partial) },
		OnComplete: func(r *GenerationResult) { completions++ },
		OnError:    func(err error) { t.Errorf("unexpected OnError: %v", err) },
	})

	if completions != 1 {
		t.Fatalf("completions = %d, want exactly 1", completions)
	}
	if len(snapshots) != 4 {
		t.Fatalf("snapshot count = %d, want 4", len(snapshots))
	}

	// Every snapshot extends the previous one.
	for i := 1; i < len(snapshots); i++ {
		if !strings.HasPrefix(snapshots[i], snapshots[i-1]) {
			t.Errorf("snapshot %d %q does not extend %q", i, snapshots[i], snapshots[i-1])
		}
	}
	if last := snapshots[len(snapshots)-1]; last != result.Content {
		t.Errorf("final snapshot = %q, want %q", last, result.Content)
	}
}

func TestStreamSimulated_EmptyContent(t *testing.T) {
	result := &GenerationResult{Content: ""}

	var tokens, completions int
	StreamSimulated(context.Background(), result, 0, StreamHandlers{
		OnToken:    func(string) { tokens++ },
		OnComplete: func(*GenerationResult) { completions++ },
	})

	if tokens != 0 {
		t.Errorf("tokens = %d, want 0 for empty content", tokens)
	}
	if completions != 1 {
		t.Errorf("completions = %d, want 1", completions)
	}
}

func TestStreamSimulated_CancellationIsTerminal(t *testing.T) {
	result := &GenerationResult{Content: "one two three four five"}

	ctx, cancel := context.WithCancel(context.Background())

	var completions, failures int
	var gotErr error

	StreamSimulated(ctx, result, 50*time.Millisecond, StreamHandlers{
		OnToken: func(partial string) {
			// Cancel mid-stream; the next inter-token delay observes it.
			cancel()
		},
		OnComplete: func(*GenerationResult) { completions++ },
		OnError: func(err error) {
			failures++
			gotErr = err
		},
	})

	if completions != 0 || failures != 1 {
		t.Fatalf("terminal callbacks: %d completions, %d failures, want exactly 1 failure", completions, failures)
	}
	if !errors.Is(gotErr, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", gotErr)
	}
}

func TestStreamSimulated_NilHandlers(t *testing.T) {
	// Nil callbacks must not panic.
	StreamSimulated(context.Background(), &GenerationResult{Content: "a b"}, 0, StreamHandlers{})
}

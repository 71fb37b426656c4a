package providers

import (
	"context"
	"strings"
	"time"
)

// StreamSimulated re-emits a completed result as a sequence of growing
// text snapshots, one word at a time, sleeping delay between tokens. It
// preserves the streaming contract: snapshots only grow, and exactly one
// terminal callback fires, after the last token. Context cancellation
// during a delay produces the terminal OnError.
//
// This chunking policy is deliberate: true incremental network streaming
// is out of scope, and the UI's token-by-token contract is satisfied by
// replaying the full response.
func StreamSimulated(ctx context.Context, result *GenerationResult, delay time.Duration, handlers StreamHandlers) {
	words := strings.Fields(result.Content)
	if len(words) == 0 {
		handlers.complete(result)
		return
	}

	var b strings.Builder
	for i, word := range words {
		if i > 0 {
			b.WriteByte(' ')
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					handlers.fail(ctx.Err())
					return
				}
			}
		}
		b.WriteString(word)
		handlers.token(b.String())
	}

	handlers.complete(result)
}

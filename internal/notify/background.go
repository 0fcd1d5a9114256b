// Package notify dispatches the best-effort side channel of the application
// lifecycle: emails to applicants and notification rows for the admin feed.
//
// Nothing here is allowed to fail the caller. Work is handed to a Background
// runner that executes it on a detached goroutine and logs any error; there is
// no retry and no queue.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTaskTimeout bounds a single background task.
const DefaultTaskTimeout = 30 * time.Second

// Background runs fire-and-forget tasks. The zero value is ready to use.
type Background struct {
	Timeout time.Duration

	wg sync.WaitGroup
}

// NewBackground returns a runner with the given per-task timeout.
func NewBackground(timeout time.Duration) *Background {
	return &Background{Timeout: timeout}
}

// Go runs fn on its own goroutine. The task keeps ctx values (request id,
// trace span) but not its cancellation, so it outlives the HTTP request that
// spawned it. Errors and panics are logged and swallowed.
func (b *Background) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	detached := context.WithoutCancel(ctx)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("task", name).Str("panic", fmt.Sprint(r)).Msg("background task panicked")
			}
		}()

		tctx, cancel := context.WithTimeout(detached, timeout)
		defer cancel()

		start := time.Now()
		if err := fn(tctx); err != nil {
			log.Warn().Err(err).Str("task", name).Dur("took", time.Since(start)).Msg("background task failed")
			return
		}
		log.Debug().Str("task", name).Dur("took", time.Since(start)).Msg("background task done")
	}()
}

// Wait blocks until every task started so far has finished. Used on shutdown
// and in tests.
func (b *Background) Wait() { b.wg.Wait() }

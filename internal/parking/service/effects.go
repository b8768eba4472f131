package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/internal/parking/metrics"
	"github.com/aussiebroadwan/parking/pkg/slogx"
)

const DefaultEffectTimeout = 10 * time.Second

// Effects runs notifications and node commands after a transition has been
// stored. Each one gets its own timeout on a context detached from the
// caller, and failures are logged and counted, never returned.
type Effects struct {
	Notifier Notifier
	Commands CommandPublisher
	Metrics  metrics.Recorder
	Timeout  time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func (e *Effects) AlertOperator(ctx context.Context, text string) {
	if e == nil || e.Notifier == nil {
		return
	}
	e.run(ctx, "alert", func(ctx context.Context) error {
		return e.Notifier.AlertOperator(ctx, text)
	})
}

// EmailUser is skipped for users without an address.
func (e *Effects) EmailUser(ctx context.Context, address, subject, body string) {
	if e == nil || e.Notifier == nil || address == "" {
		return
	}
	e.run(ctx, "email", func(ctx context.Context) error {
		return e.Notifier.EmailUser(ctx, address, subject, body)
	})
}

func (e *Effects) Publish(ctx context.Context, nodeID string, cmd domain.NodeCommand) {
	if e == nil || e.Commands == nil {
		return
	}
	e.run(ctx, "publish", func(ctx context.Context) error {
		return e.Commands.Publish(ctx, nodeID, cmd)
	})
}

// Wait blocks until every dispatched effect has finished. Dispatch stays
// open; use Close when no more effects may start.
func (e *Effects) Wait() {
	if e == nil {
		return
	}
	e.wg.Wait()
}

// Close rejects further effects, then waits for the ones already running.
// Effects dispatched afterwards are dropped and counted as failures.
func (e *Effects) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
}

func (e *Effects) run(parent context.Context, kind string, fn func(context.Context) error) {
	log := slogx.FromContext(parent)

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultEffectTimeout
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		log.Warn("side effect dropped, shutting down", slog.String("kind", kind))
		if e.Metrics != nil {
			e.Metrics.RecordSideEffectFailure(kind)
		}
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithTimeout(slogx.Detached(parent), timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			log.Warn("side effect failed",
				slog.String("kind", kind),
				slog.Any("error", err),
			)
			if e.Metrics != nil {
				e.Metrics.RecordSideEffectFailure(kind)
			}
		}
	}()
}

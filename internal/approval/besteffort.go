// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package approval

import (
	"context"
	"log/slog"
	"time"

	"github.com/aplane-ton/custody/internal/errors"
)

// BestEffort is detached work whose failure only reaches the log. It is
// used for work that must not block or fail the operation that started it.
type BestEffort struct {
	Name    string
	Timeout time.Duration // zero means no deadline
	Run     func(ctx context.Context) error
}

// Launch starts the work in its own goroutine, detached from the caller's
// cancellation. The returned channel closes when the work has finished.
func (b BestEffort) Launch(ctx context.Context, log *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer close(done)

		var cancel context.CancelFunc = func() {}
		if b.Timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		}
		defer cancel()

		err := func() (err error) {
			defer errors.Recover(&err)
			return b.Run(ctx)
		}()
		if err != nil {
			log.Warn("best-effort operation failed", "operation", b.Name, "error", err)
			return
		}
		log.Debug("best-effort operation finished", "operation", b.Name)
	}()
	return done
}

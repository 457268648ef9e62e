package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// background runs best-effort work detached from the request that started
// it.  Failures and panics are logged and never reach the caller.
type background struct {
	wg      sync.WaitGroup
	timeout time.Duration
	logger  logrus.FieldLogger
}

func newBackground(timeout time.Duration, logger logrus.FieldLogger) *background {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &background{timeout: timeout, logger: logger}
}

// Go runs fn with a context that keeps parent's values but not its
// cancellation, bounded by the runner's timeout.
func (b *background) Go(parent context.Context, task string, fields logrus.Fields, fn func(ctx context.Context) error) {
	log := b.logger.WithFields(fields).WithField("task", task)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("background task panicked: %v", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), b.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.WithError(err).Warn("background task failed")
		}
	}()
}

// Wait blocks until every started task has returned.
func (b *background) Wait() { b.wg.Wait() }

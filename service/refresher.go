package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// refresher runs ledger reloads with at most one in flight per key.
//
// Synchronous callers share a running reload through singleflight; the
// reload itself runs under the refresher's root context so one caller
// giving up does not cancel it for the others. Background reloads are
// additionally deduplicated before a goroutine is started.
type refresher struct {
	group    singleflight.Group
	inflight sync.Map
	wg       sync.WaitGroup

	root    context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	log     logrus.FieldLogger
}

func newRefresher(timeout time.Duration, log logrus.FieldLogger) *refresher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	root, cancel := context.WithCancel(context.Background())
	return &refresher{root: root, cancel: cancel, timeout: timeout, log: log}
}

// do runs fn for key, or joins the run already in progress.
func (r *refresher) do(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ch := r.group.DoChan(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(r.root, r.timeout)
		defer cancel()
		return fn(ctx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// background schedules fn for key unless one is already scheduled or
// running. It reports whether a new refresh was started.
func (r *refresher) background(key string, fn func(context.Context) (interface{}, error)) bool {
	if r.root.Err() != nil {
		return false
	}
	if _, loaded := r.inflight.LoadOrStore(key, struct{}{}); loaded {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.inflight.Delete(key)
		if _, err := r.do(r.root, key, fn); err != nil {
			// the stale value stays in place
			r.log.WithError(err).WithField("key", key).Warn("background refresh failed")
		}
	}()
	return true
}

// wait blocks until every background refresh started so far has finished.
func (r *refresher) wait() {
	r.wg.Wait()
}

func (r *refresher) close() {
	r.cancel()
	r.wg.Wait()
}

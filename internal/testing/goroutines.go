package testing

import (
	"context"
	"sync"
	"testing"
	"time"
)

// GoroutineTest runs functions concurrently and reports their errors from
// the test goroutine. t.Fatal must not be called from other goroutines.
//
//	gt := atmotest.NewGoroutineTest(t, 5*time.Second)
//	gt.GoWithContext(func(ctx context.Context) error {
//	    for ctx.Err() == nil {
//	        store.Append(atmotest.Reading(1))
//	    }
//	    return nil
//	})
//	gt.Wait()
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	mu     sync.Mutex
	errs   []error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest returns a helper whose context expires after timeout.
func NewGoroutineTest(t *testing.T, timeout time.Duration) *GoroutineTest {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return &GoroutineTest{t: t, ctx: ctx, cancel: cancel}
}

// Go runs fn in a goroutine.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.GoWithContext(func(context.Context) error { return fn() })
}

// GoWithContext runs fn in a goroutine with the helper's context.
func (gt *GoroutineTest) GoWithContext(fn func(ctx context.Context) error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(gt.ctx); err != nil {
			gt.mu.Lock()
			gt.errs = append(gt.errs, err)
			gt.mu.Unlock()
		}
	}()
}

// Context returns the shared context.
func (gt *GoroutineTest) Context() context.Context {
	return gt.ctx
}

// Cancel signals goroutines started with GoWithContext to stop.
func (gt *GoroutineTest) Cancel() {
	gt.cancel()
}

// Wait waits for every goroutine and fails the test if any returned an error.
func (gt *GoroutineTest) Wait() {
	gt.t.Helper()
	gt.wg.Wait()
	gt.cancel()

	if len(gt.errs) == 0 {
		return
	}
	for i, err := range gt.errs {
		gt.t.Errorf("goroutine error [%d]: %v", i+1, err)
	}
	gt.t.FailNow()
}

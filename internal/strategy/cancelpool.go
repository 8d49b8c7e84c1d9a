// cancelpool.go implements the bounded worker pool the strategy machine
// dispatches asynchronous cancels to, so a slow REST round-trip never
// holds the machine's mutex (spec.md §5).
package strategy

// CancelPool runs fire-and-forget work on at most `size` goroutines at
// once via a buffered-channel semaphore — the idiomatic Go shape for a
// small, fixed-size, equal-weight pool, in place of a dedicated
// rate-limiting package.
type CancelPool struct {
	sem chan struct{}
}

// NewCancelPool creates a pool admitting at most size concurrent jobs.
func NewCancelPool(size int) *CancelPool {
	if size <= 0 {
		size = 1
	}
	return &CancelPool{sem: make(chan struct{}, size)}
}

// Go queues fn onto the pool without ever blocking the caller: admission
// to the size-bounded semaphore happens on a freshly spawned goroutine,
// not on the calling goroutine, so a saturated pool queues the job
// instead of stalling whoever called Go (typically the strategy machine
// while it holds its mutex).
func (p *CancelPool) Go(fn func()) {
	go func() {
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		fn()
	}()
}

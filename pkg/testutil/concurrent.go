package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	"rollguard/internal/sentinel"
	dErrors "rollguard/pkg/domain-errors"
)

// ConcurrentResult counts outcomes of racing operations.
type ConcurrentResult struct {
	Successes int32
	// Rejections are refused transitions, conflicts and in-flight guards.
	Rejections int32
	NotFounds  int32
	Errors     int32
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Rejections + r.NotFounds + r.Errors
}

// RunConcurrent starts n goroutines running fn at once and classifies what
// each returned, by sentinel or by domain code.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg                                      sync.WaitGroup
		start                                   = make(chan struct{})
		successes, rejections, notFounds, other atomic.Int32
	)

	for i := range n {
		wg.Go(func() {
			<-start
			err := fn(i)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrConflict),
				errors.Is(err, sentinel.ErrInFlight),
				errors.Is(err, sentinel.ErrInvalidState),
				dErrors.HasCode(err, dErrors.CodeInvalidState),
				dErrors.HasCode(err, dErrors.CodeConflict):
				rejections.Add(1)
			case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
				notFounds.Add(1)
			default:
				other.Add(1)
			}
		})
	}
	close(start)
	wg.Wait()

	return &ConcurrentResult{
		Successes:  successes.Load(),
		Rejections: rejections.Load(),
		NotFounds:  notFounds.Load(),
		Errors:     other.Load(),
	}
}

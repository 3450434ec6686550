package collector

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// ErrRunInProgress is returned by Guard when another run holds it.
var ErrRunInProgress = eris.New("collector: run already in progress")

// Runner executes one collection run.
type Runner interface {
	Run(ctx context.Context) (*RunSummary, error)
}

// Guard serializes runs started from this process. Runs from other
// processes are not seen.
type Guard struct {
	runner Runner
	mu     sync.Mutex
}

// NewGuard wraps r.
func NewGuard(r Runner) *Guard {
	return &Guard{runner: r}
}

// Run starts a run unless one is already active, in which case it returns
// ErrRunInProgress immediately.
func (g *Guard) Run(ctx context.Context) (*RunSummary, error) {
	if !g.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer g.mu.Unlock()
	return g.runner.Run(ctx)
}

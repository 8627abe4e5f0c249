package runtime

import (
	"context"
	"sync"

	"github.com/kamitools/kami/pkg/types"
)

// Priority levels for tool execution. Reserved for weighted admission;
// the current gate admits strictly first-come-first-served.
type Priority int

const (
	// PriorityLow marks background work.
	PriorityLow Priority = iota
	// PriorityNormal is the default.
	PriorityNormal
	// PriorityHigh marks interactive work.
	PriorityHigh
)

// Scheduler is a bounded admission gate: at most maxConcurrent
// executions hold a permit at once.
type Scheduler struct {
	sem           chan struct{}
	maxConcurrent int
}

// NewScheduler creates a gate admitting maxConcurrent concurrent
// executions. Values below one are clamped to one.
func NewScheduler(maxConcurrent int) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		sem:           make(chan struct{}, maxConcurrent),
		maxConcurrent: maxConcurrent,
	}
}

// Permit is a held admission slot. Release returns it; releasing twice
// is safe.
type Permit struct {
	scheduler *Scheduler
	once      sync.Once
}

// Acquire blocks until a slot frees up or ctx is cancelled. A cancelled
// wait never leaks a permit.
func (s *Scheduler) Acquire(ctx context.Context) (*Permit, error) {
	select {
	case s.sem <- struct{}{}:
		return &Permit{scheduler: s}, nil
	case <-ctx.Done():
		return nil, types.ResourceExhausted("scheduler").
			WithHint("all execution slots are busy and the wait was cancelled").
			WithFix("raise max_concurrent or retry later").
			WithCause(ctx.Err())
	}
}

// Release returns the permit to the gate.
func (p *Permit) Release() {
	p.once.Do(func() {
		<-p.scheduler.sem
	})
}

// AvailablePermits reports the number of free slots.
func (s *Scheduler) AvailablePermits() int {
	return s.maxConcurrent - len(s.sem)
}

// MaxConcurrent reports the configured gate width.
func (s *Scheduler) MaxConcurrent() int { return s.maxConcurrent }

// Drain blocks until every outstanding permit has been returned, or ctx
// expires. Used at shutdown.
func (s *Scheduler) Drain(ctx context.Context) error {
	held := make([]*Permit, 0, s.maxConcurrent)
	defer func() {
		for _, p := range held {
			p.Release()
		}
	}()
	for range s.maxConcurrent {
		p, err := s.Acquire(ctx)
		if err != nil {
			return err
		}
		held = append(held, p)
	}
	return nil
}

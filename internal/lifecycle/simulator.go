package lifecycle

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/loykin/vpnclient/internal/event"
)

// Simulator decides whether the simulated connect/disconnect action succeeds.
// target is the terminal status the operation is aiming for (UP or DOWN).
type Simulator interface {
	Simulate(ctx context.Context, target event.Status) bool
}

// SimulatorFunc adapts a plain function to Simulator.
type SimulatorFunc func(ctx context.Context, target event.Status) bool

func (f SimulatorFunc) Simulate(ctx context.Context, target event.Status) bool { return f(ctx, target) }

// Always returns a Simulator with a fixed outcome and no delay.
func Always(ok bool) Simulator {
	return SimulatorFunc(func(context.Context, event.Status) bool { return ok })
}

// RandomSimulator fails with probability FailureRate after waiting a duration drawn
// uniformly from [MinDuration, MaxDuration].
type RandomSimulator struct {
	FailureRate float64
	MinDuration time.Duration
	MaxDuration time.Duration

	// rnd is used when set; otherwise the package-level generator.
	rnd *rand.Rand
}

// NewRandomSimulator builds a RandomSimulator; seed is optional and makes outcomes reproducible.
func NewRandomSimulator(failureRate float64, minDur, maxDur time.Duration, seed ...uint64) *RandomSimulator {
	s := &RandomSimulator{FailureRate: failureRate, MinDuration: minDur, MaxDuration: maxDur}
	if len(seed) > 0 {
		s.rnd = rand.New(rand.NewPCG(seed[0], seed[0]^0x9e3779b97f4a7c15))
	}
	return s
}

func (s *RandomSimulator) Simulate(ctx context.Context, _ event.Status) bool {
	if !sleepCtx(ctx, s.duration()) {
		return false
	}
	return s.float() >= s.FailureRate
}

func (s *RandomSimulator) duration() time.Duration {
	lo, hi := s.MinDuration, s.MaxDuration
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.int64n(int64(hi-lo)+1))
}

func (s *RandomSimulator) float() float64 {
	if s.rnd != nil {
		return s.rnd.Float64()
	}
	return rand.Float64()
}

func (s *RandomSimulator) int64n(n int64) int64 {
	if s.rnd != nil {
		return s.rnd.Int64N(n)
	}
	return rand.Int64N(n)
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

package collect

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/domino14/spintable/solver"
)

var errFlaky = errors.New("flaky solver")

type fakeFuture struct {
	ss       solver.SampleSet
	err      error
	hang     bool
	canceled bool
}

func (f *fakeFuture) AwaitCompletion(ctx context.Context, timeout time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	return !f.hang
}

func (f *fakeFuture) Result() (solver.SampleSet, error) {
	return f.ss, f.err
}

func (f *fakeFuture) Cancel() {
	f.canceled = true
}

type submission struct {
	problem solver.Problem
	params  solver.Params
}

// fakeSolver hands out sessions that answer with evenDown samples unless
// script overrides a call. Calls are numbered across all sessions.
type fakeSolver struct {
	mu      sync.Mutex
	nodes   []int
	hRange  solver.DeviceRange
	script  func(call int, reads int) (*fakeFuture, error)
	submits []submission
	futures []*fakeFuture
	dials   int
	closes  int
}

func newFakeSolver(nodes []int) *fakeSolver {
	return &fakeSolver{nodes: nodes, hRange: solver.DeviceRange{Lower: -2, Upper: 2}}
}

func (s *fakeSolver) Dial(ctx context.Context) (solver.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	return &fakeSession{s: s}, nil
}

func (s *fakeSolver) sizes() []int {
	out := make([]int, len(s.submits))
	for i, sub := range s.submits {
		out[i] = sub.params.NumReads
	}
	return out
}

type fakeSession struct {
	s *fakeSolver
}

func (fs *fakeSession) Nodes() []int               { return fs.s.nodes }
func (fs *fakeSession) HRange() solver.DeviceRange { return fs.s.hRange }

func (fs *fakeSession) Close() error {
	fs.s.mu.Lock()
	defer fs.s.mu.Unlock()
	fs.s.closes++
	return nil
}

func (fs *fakeSession) SubmitIsing(ctx context.Context, p solver.Problem, params solver.Params) (solver.Future, error) {
	s := fs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	call := len(s.submits)
	s.submits = append(s.submits, submission{problem: p, params: params})
	var f *fakeFuture
	if s.script != nil {
		var err error
		f, err = s.script(call, params.NumReads)
		if err != nil {
			return nil, err
		}
	}
	if f == nil {
		f = &fakeFuture{ss: evenDown(s.nodes, params.NumReads)}
	}
	s.futures = append(s.futures, f)
	return f, nil
}

// evenDown is a single solution, read `reads` times, in which every even
// qubit is down and every odd one up.
func evenDown(nodes []int, reads int) solver.SampleSet {
	size := 0
	for _, n := range nodes {
		size = max(size, n+1)
	}
	state := make([]int8, size)
	for i := range state {
		state[i] = solver.Unused
	}
	for _, n := range nodes {
		if n%2 == 0 {
			state[n] = solver.Down
		} else {
			state[n] = solver.Up
		}
	}
	return solver.SampleSet{Solutions: [][]int8{state}, Occurrences: []int{reads}}
}

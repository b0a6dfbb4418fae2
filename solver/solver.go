// Package solver describes the remote sampling capability the collector
// talks to. A Session is one connection to a solver; a problem submitted to
// it comes back as a Future that can be awaited with a bounded timeout.
package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Spin values as they appear in a returned solution.
const (
	Up     int8 = 1
	Down   int8 = -1
	Unused int8 = 3
)

var ErrMalformedResult = errors.New("malformed sample set")

// DeviceRange is the solver-imposed bound on a single site's field.
type DeviceRange struct {
	Lower float64
	Upper float64
}

func (r DeviceRange) String() string {
	return fmt.Sprintf("[%g, %g]", r.Lower, r.Upper)
}

// A ProblemEntry is a single coefficient of an Ising problem. If I == J it
// is a linear (field) term, otherwise a coupler.
type ProblemEntry struct {
	I     int     `json:"i"`
	J     int     `json:"j"`
	Value float64 `json:"v"`
}

// A Problem is a list of ProblemEntry coefficients.
type Problem []ProblemEntry

// FieldProblem sets every listed spin to the same field h with no couplers.
func FieldProblem(spinIDs []int, h float64) Problem {
	return lo.Map(spinIDs, func(id int, _ int) ProblemEntry {
		return ProblemEntry{I: id, J: id, Value: h}
	})
}

// Params are the per-request solver parameters.
type Params struct {
	NumReads                  int  `json:"num_reads"`
	AnnealingTime             int  `json:"annealing_time"`
	AutoScale                 bool `json:"auto_scale"`
	FluxDriftCompensation     bool `json:"flux_drift_compensation"`
	NumSpinReversalTransforms int  `json:"num_spin_reversal_transforms,omitempty"`
}

// A SampleSet is the answer to one submitted problem. Each solution is
// indexed by qubit id and paired with the number of times it was read.
type SampleSet struct {
	Solutions   [][]int8 `json:"solutions"`
	Occurrences []int    `json:"num_occurrences"`
}

// Total is the number of reads the set represents.
func (s SampleSet) Total() int {
	return lo.Sum(s.Occurrences)
}

// Validate checks that the set can be tallied over spinIDs.
func (s SampleSet) Validate(spinIDs []int) error {
	if len(s.Solutions) != len(s.Occurrences) {
		return fmt.Errorf("%w: %d solutions but %d occurrence counts",
			ErrMalformedResult, len(s.Solutions), len(s.Occurrences))
	}
	maxID := -1
	if len(spinIDs) > 0 {
		maxID = lo.Max(spinIDs)
	}
	for i, sol := range s.Solutions {
		if len(sol) <= maxID {
			return fmt.Errorf("%w: solution %d has %d sites, need spin %d",
				ErrMalformedResult, i, len(sol), maxID)
		}
		if s.Occurrences[i] < 0 {
			return fmt.Errorf("%w: negative occurrence count %d", ErrMalformedResult, s.Occurrences[i])
		}
	}
	return nil
}

// A Future is a problem that has been submitted but not necessarily solved.
type Future interface {
	// AwaitCompletion returns true once the problem is done, or false if the
	// timeout elapsed (or ctx ended) first.
	AwaitCompletion(ctx context.Context, timeout time.Duration) bool
	// Result is only meaningful after AwaitCompletion returned true.
	Result() (SampleSet, error)
	Cancel()
}

// A Session is an open connection to a solver.
type Session interface {
	Nodes() []int
	HRange() DeviceRange
	SubmitIsing(ctx context.Context, p Problem, params Params) (Future, error)
	Close() error
}

// A Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

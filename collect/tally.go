package collect

import (
	"errors"
	"fmt"
	"slices"

	"github.com/domino14/spintable/checkpoint"
	"github.com/domino14/spintable/solver"
)

var ErrSampleCountMismatch = errors.New("collected sample count does not match the request")

// Tally accumulates down counts for one field value across rounds.
type Tally struct {
	H        float64
	SpinIDs  []int
	SpinDown []int
	Samples  int
}

func NewTally(h float64, spinIDs []int) *Tally {
	return &Tally{
		H:        h,
		SpinIDs:  spinIDs,
		SpinDown: make([]int, len(spinIDs)),
	}
}

// Add folds a sample set into the tally. The set must already have passed
// Validate against the tally's spins.
func (t *Tally) Add(ss solver.SampleSet) {
	for i, sol := range ss.Solutions {
		occ := ss.Occurrences[i]
		for k, id := range t.SpinIDs {
			if sol[id] == solver.Down {
				t.SpinDown[k] += occ
			}
		}
		t.Samples += occ
	}
}

// Validate checks the tally holds exactly the requested number of samples.
func (t *Tally) Validate(requested int) error {
	if t.Samples != requested {
		return fmt.Errorf("%w: h=%s collected %d, requested %d",
			ErrSampleCountMismatch, checkpoint.Key(t.H), t.Samples, requested)
	}
	return nil
}

// Row is the checkpoint row for the tally.
func (t *Tally) Row() checkpoint.Row {
	return checkpoint.Row{
		H:        t.H,
		Samples:  t.Samples,
		SpinDown: slices.Clone(t.SpinDown),
	}
}

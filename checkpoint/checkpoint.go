// Package checkpoint persists one row per completed field value so that a
// collection run can be interrupted and resumed without re-collecting or
// duplicating anything.
package checkpoint

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/samber/lo"
)

// Filename is the canonical spin table inside a working directory.
const Filename = "spin_table.csv"

var ErrCorrupt = errors.New("corrupt checkpoint")

// Row is the completed result for one field value. SpinDown is aligned with
// the spin ordering the store was opened with.
type Row struct {
	H        float64
	Samples  int
	SpinDown []int
}

// Store is a durable table of completed rows.
type Store interface {
	// Load returns the field values already recorded, in file order.
	Load() ([]float64, error)
	// Append records a row; it has reached stable storage when Append returns.
	Append(r Row) error
	Close() error
}

// Key is the persisted form of a field value. Membership checks compare keys
// so a value survives the round trip through the file.
func Key(h float64) string {
	return strconv.FormatFloat(h, 'f', 5, 64)
}

// Header names the columns of a spin table over spinIDs.
func Header(spinIDs []int) []string {
	cols := make([]string, 0, len(spinIDs)+2)
	cols = append(cols, "h", "samples")
	for _, id := range spinIDs {
		cols = append(cols, fmt.Sprintf("spin_%d", id))
	}
	return cols
}

// Remaining returns the planned values whose keys are not in visited,
// keeping planned order.
func Remaining(planned, visited []float64) []float64 {
	seen := lo.SliceToMap(visited, func(h float64) (string, struct{}) {
		return Key(h), struct{}{}
	})
	return lo.Filter(planned, func(h float64, _ int) bool {
		_, ok := seen[Key(h)]
		return !ok
	})
}

func checkRow(r Row, numSpins int) error {
	if len(r.SpinDown) != numSpins {
		return fmt.Errorf("row for h=%s has %d spin counts, table has %d spins",
			Key(r.H), len(r.SpinDown), numSpins)
	}
	return nil
}

// MultiStore appends to every store and loads from the first one.
type MultiStore []Store

func (m MultiStore) Load() ([]float64, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].Load()
}

func (m MultiStore) Append(r Row) error {
	for _, s := range m {
		if err := s.Append(r); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiStore) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Package collect gathers spin-flip statistics from a solver over a sweep
// of field values. Each field value is sampled in rounds of concurrently
// submitted requests; a round either lands in full or not at all, and a
// value is checkpointed only once all of its samples are in.
package collect

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/domino14/spintable/checkpoint"
	"github.com/domino14/spintable/solver"
	"github.com/domino14/spintable/stats"
	"github.com/domino14/spintable/sweep"
)

var ErrNoSpins = errors.New("no active spins to collect")

// Collector runs a whole sweep against one solver.
type Collector struct {
	dialer solver.Dialer
	opts   Options

	// OnRow, if set, is called after each row has been checkpointed.
	OnRow func(row checkpoint.Row, sum stats.Summary)
}

func NewCollector(dialer solver.Dialer, opts Options) *Collector {
	return &Collector{dialer: dialer, opts: opts}
}

// Device is what the collector learns about the solver at startup.
type Device struct {
	SpinIDs []int
	HRange  solver.DeviceRange
}

// Discover opens a session just long enough to read the solver's active
// spins (sorted, then filtered by the spin set) and its field range.
func (c *Collector) Discover(ctx context.Context) (Device, error) {
	sess, err := c.dialer.Dial(ctx)
	if err != nil {
		return Device{}, fmt.Errorf("connecting to solver: %w", err)
	}
	defer sess.Close()

	spinIDs := slices.Clone(sess.Nodes())
	slices.Sort(spinIDs)
	if len(c.opts.SpinSet) > 0 {
		keep := lo.SliceToMap(c.opts.SpinSet, func(id int) (int, struct{}) {
			return id, struct{}{}
		})
		spinIDs = lo.Filter(spinIDs, func(id int, _ int) bool {
			_, ok := keep[id]
			return ok
		})
	}
	if len(spinIDs) == 0 {
		return Device{}, ErrNoSpins
	}
	return Device{SpinIDs: spinIDs, HRange: sess.HRange()}, nil
}

// Run collects every planned field value not already in the checkpoint.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.opts.Validate(); err != nil {
		return err
	}
	dev, err := c.Discover(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("spins", len(dev.SpinIDs)).Stringer("h-range", dev.HRange).Msg("discovered-solver")

	planned, err := sweep.Plan(c.opts.HRange, c.opts.HStep)
	if err != nil {
		return err
	}
	planned, factor := sweep.Fit(planned, dev.HRange)
	if factor < 1.0 {
		log.Info().Stringer("h-range", dev.HRange).Float64("scaling-factor", factor).Msg("rescaling-field")
	}

	store, err := c.openStore(dev.SpinIDs)
	if err != nil {
		return err
	}
	defer store.Close()

	visited, err := store.Load()
	if err != nil {
		return err
	}
	if len(visited) > 0 {
		log.Info().Floats64("h", visited).Msg("previously-collected")
	}
	remaining := checkpoint.Remaining(planned, visited)
	log.Info().Floats64("h", remaining).Msg("remaining-to-collect")
	if len(remaining) == 0 {
		log.Info().Str("directory", c.opts.Directory).Msg("nothing-to-collect")
		return nil
	}

	err = checkpoint.WriteManifest(c.opts.Directory, checkpoint.Manifest{
		Profile:                   c.opts.Profile,
		HRange:                    c.opts.HRange,
		HStep:                     c.opts.HStep,
		ScalingFactor:             factor,
		DeviceRange:               [2]float64{dev.HRange.Lower, dev.HRange.Upper},
		NumReads:                  c.opts.NumReads,
		AnnealingTime:             c.opts.AnnealingTime,
		SpinReversalTransformRate: c.opts.SpinReversalTransformRate,
		SpinIDs:                   dev.SpinIDs,
		Planned:                   planned,
		StartedAt:                 time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	for _, h := range remaining {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.collectOne(ctx, store, dev.SpinIDs, h); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) openStore(spinIDs []int) (checkpoint.Store, error) {
	csvStore, err := checkpoint.OpenCSV(c.opts.Directory, spinIDs)
	if err != nil {
		return nil, err
	}
	if !c.opts.SQLiteMirror {
		return csvStore, nil
	}
	db, err := checkpoint.OpenSQLite(filepath.Join(c.opts.Directory, checkpoint.SQLiteFilename), spinIDs)
	if err != nil {
		csvStore.Close()
		return nil, err
	}
	return checkpoint.MultiStore{csvStore, db}, nil
}

// collectOne holds a session for exactly one field value.
func (c *Collector) collectOne(ctx context.Context, store checkpoint.Store, spinIDs []int, h float64) error {
	sess, err := c.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("connecting to solver: %w", err)
	}
	defer sess.Close()

	tally, err := NewScheduler(sess, spinIDs, c.opts).Collect(ctx, h)
	if err != nil {
		return err
	}
	if err := tally.Validate(c.opts.NumReads); err != nil {
		return err
	}
	row := tally.Row()
	if err := store.Append(row); err != nil {
		return fmt.Errorf("recording h=%s: %w", checkpoint.Key(h), err)
	}

	sum := stats.Summarize(row.SpinDown, row.Samples)
	log.Info().Str("h", checkpoint.Key(h)).Int("samples", row.Samples).
		Float64("mean-down", sum.MeanDown).Float64("ci95", sum.CI95).
		Float64("magnetization", sum.Magnetization).Msg("h-complete")
	if c.OnRow != nil {
		c.OnRow(row, sum)
	}
	return nil
}

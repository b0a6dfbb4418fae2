package collect

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/domino14/spintable/checkpoint"
	"github.com/domino14/spintable/solver"
	"github.com/domino14/spintable/solver/sim"
	"github.com/domino14/spintable/stats"
)

func sweepOptions(t *testing.T) Options {
	opts := testOptions()
	opts.Directory = t.TempDir()
	opts.HRange = 1
	opts.HStep = 0.5
	return opts
}

func readTable(t *testing.T, dir string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, checkpoint.Filename))
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestCollectorEndToEnd(t *testing.T) {
	is := is.New(t)
	fs := newFakeSolver([]int{3, 0, 1})
	opts := sweepOptions(t)
	var rows []checkpoint.Row
	c := NewCollector(fs, opts)
	c.OnRow = func(r checkpoint.Row, _ stats.Summary) { rows = append(rows, r) }
	is.NoErr(c.Run(context.Background()))

	is.Equal(readTable(t, opts.Directory), []string{
		"h,samples,spin_0,spin_1,spin_3",
		"-1.00000,20,20,0,0",
		"-0.50000,20,20,0,0",
		"0.00000,20,20,0,0",
		"0.50000,20,20,0,0",
		"1.00000,20,20,0,0",
	})
	is.Equal(len(rows), 5)
	// One discovery session plus one per field value, all closed.
	is.Equal(fs.dials, 6)
	is.Equal(fs.closes, 6)
	// Two rounds of one call per field value.
	is.Equal(len(fs.submits), 10)

	m, err := checkpoint.ReadManifest(opts.Directory)
	is.NoErr(err)
	is.Equal(m.SpinIDs, []int{0, 1, 3})
	is.Equal(m.ScalingFactor, 1.0)
}

func TestCollectorIdempotent(t *testing.T) {
	is := is.New(t)
	fs := newFakeSolver([]int{0, 1})
	opts := sweepOptions(t)
	is.NoErr(NewCollector(fs, opts).Run(context.Background()))
	before, err := os.ReadFile(filepath.Join(opts.Directory, checkpoint.Filename))
	is.NoErr(err)

	manifestBefore, err := os.ReadFile(filepath.Join(opts.Directory, checkpoint.ManifestFilename))
	is.NoErr(err)

	again := newFakeSolver([]int{0, 1})
	opts.NumReads = 40
	is.NoErr(NewCollector(again, opts).Run(context.Background()))
	is.Equal(len(again.submits), 0)
	after, err := os.ReadFile(filepath.Join(opts.Directory, checkpoint.Filename))
	is.NoErr(err)
	is.Equal(string(before), string(after))
	// The manifest still describes the run that wrote the table.
	manifestAfter, err := os.ReadFile(filepath.Join(opts.Directory, checkpoint.ManifestFilename))
	is.NoErr(err)
	is.Equal(string(manifestBefore), string(manifestAfter))
}

func TestCollectorResumes(t *testing.T) {
	is := is.New(t)
	opts := sweepOptions(t)
	table := "h,samples,spin_0,spin_1\n" +
		"0.50000,20,20,0\n" +
		"-1.00000,20,20,0\n"
	is.NoErr(os.WriteFile(filepath.Join(opts.Directory, checkpoint.Filename), []byte(table), 0o644))

	fs := newFakeSolver([]int{0, 1})
	is.NoErr(NewCollector(fs, opts).Run(context.Background()))

	hs := map[float64]int{}
	for _, sub := range fs.submits {
		hs[sub.problem[0].Value]++
	}
	is.Equal(hs, map[float64]int{-0.5: 2, 0: 2, 1: 2})
	is.Equal(readTable(t, opts.Directory)[3:], []string{
		"-0.50000,20,20,0",
		"0.00000,20,20,0",
		"1.00000,20,20,0",
	})
}

func TestCollectorCorruptCheckpointIsFatal(t *testing.T) {
	is := is.New(t)
	opts := sweepOptions(t)
	table := "h,samples,spin_0,spin_1\nnot-a-number,20,20,0\n"
	is.NoErr(os.WriteFile(filepath.Join(opts.Directory, checkpoint.Filename), []byte(table), 0o644))

	fs := newFakeSolver([]int{0, 1})
	err := NewCollector(fs, opts).Run(context.Background())
	is.True(errors.Is(err, checkpoint.ErrCorrupt))
	is.Equal(len(fs.submits), 0)
	_, err = os.Stat(filepath.Join(opts.Directory, checkpoint.ManifestFilename))
	is.True(errors.Is(err, os.ErrNotExist))
}

func TestCollectorCountMismatchIsFatal(t *testing.T) {
	is := is.New(t)
	opts := sweepOptions(t)
	fs := newFakeSolver([]int{0, 1})
	// A solver that answers with one read too many on its fourth call
	// (the second round of the second field value).
	fs.script = func(call, reads int) (*fakeFuture, error) {
		if call == 3 {
			return &fakeFuture{ss: evenDown([]int{0, 1}, reads+1)}, nil
		}
		return nil, nil
	}
	err := NewCollector(fs, opts).Run(context.Background())
	is.True(errors.Is(err, ErrSampleCountMismatch))
	// Only the first field value made it to the table.
	is.Equal(readTable(t, opts.Directory), []string{
		"h,samples,spin_0,spin_1",
		"-1.00000,20,20,0",
	})
}

func TestCollectorRescalesSweep(t *testing.T) {
	is := is.New(t)
	opts := sweepOptions(t)
	opts.HRange = 4
	opts.HStep = 2
	fs := newFakeSolver([]int{0})
	fs.hRange = solver.DeviceRange{Lower: -1, Upper: 2}
	is.NoErr(NewCollector(fs, opts).Run(context.Background()))

	is.Equal(readTable(t, opts.Directory), []string{
		"h,samples,spin_0",
		"-1.00000,20,20",
		"-0.50000,20,20",
		"0.00000,20,20",
		"0.50000,20,20",
		"1.00000,20,20",
	})
	m, err := checkpoint.ReadManifest(opts.Directory)
	is.NoErr(err)
	is.Equal(m.ScalingFactor, 0.25)
}

func TestCollectorSpinSet(t *testing.T) {
	is := is.New(t)
	opts := sweepOptions(t)
	opts.HRange = 0
	opts.SpinSet = []int{4, 2, 99}
	fs := newFakeSolver([]int{0, 1, 2, 3, 4})
	is.NoErr(NewCollector(fs, opts).Run(context.Background()))
	is.Equal(readTable(t, opts.Directory), []string{
		"h,samples,spin_2,spin_4",
		"0.00000,20,20,20",
	})
	is.Equal(fs.submits[0].problem, solver.FieldProblem([]int{2, 4}, 0))

	opts = sweepOptions(t)
	opts.SpinSet = []int{99}
	err := NewCollector(newFakeSolver([]int{0}), opts).Run(context.Background())
	is.True(errors.Is(err, ErrNoSpins))
}

func TestCollectorInvalidOptions(t *testing.T) {
	is := is.New(t)
	opts := sweepOptions(t)
	opts.CallMax = 0
	fs := newFakeSolver([]int{0})
	is.True(NewCollector(fs, opts).Run(context.Background()) != nil)
	is.Equal(fs.dials, 0)

	// Steps below the table's precision would repeat values.
	opts = sweepOptions(t)
	opts.HStep = 0.00005
	is.True(NewCollector(fs, opts).Run(context.Background()) != nil)
	is.Equal(fs.dials, 0)
}

func TestCollectorRescaleStaysInDeviceRange(t *testing.T) {
	is := is.New(t)
	opts := sweepOptions(t)
	// 2.0211 * (1.5/2.0211) is one ulp above 1.5.
	opts.HRange = 2.0211
	opts.HStep = 4.0422
	opts.MaxRetries = 2
	dev := sim.New(sim.Config{NumQubits: 2, HMin: -2, HMax: 1.5, Beta: 1, MaxReads: 10})
	is.NoErr(NewCollector(dev, opts).Run(context.Background()))

	lines := readTable(t, opts.Directory)
	is.Equal(len(lines), 3)
	is.True(strings.HasPrefix(lines[1], "-1.50000,20,"))
	is.True(strings.HasPrefix(lines[2], "1.50000,20,"))
	m, err := checkpoint.ReadManifest(opts.Directory)
	is.NoErr(err)
	is.Equal(m.Planned[1], 1.5)
}

func TestCollectorWithSimulator(t *testing.T) {
	is := is.New(t)
	opts := sweepOptions(t)
	opts.NumReads = 250
	opts.CallMax = 40
	opts.CallsPerRound = 3
	opts.SQLiteMirror = true
	dev := sim.New(sim.Config{NumQubits: 6, Broken: []int{2}, HMin: -2, HMax: 2, Beta: 1, MaxReads: 40})
	is.NoErr(NewCollector(dev, opts).Run(context.Background()))

	lines := readTable(t, opts.Directory)
	is.Equal(lines[0], "h,samples,spin_0,spin_1,spin_3,spin_4,spin_5")
	is.Equal(len(lines), 6)
	for _, l := range lines[1:] {
		is.Equal(strings.Split(l, ",")[1], "250")
	}

	db, err := checkpoint.OpenSQLite(filepath.Join(opts.Directory, checkpoint.SQLiteFilename),
		[]int{0, 1, 3, 4, 5})
	is.NoErr(err)
	defer db.Close()
	visited, err := db.Load()
	is.NoErr(err)
	is.Equal(visited, []float64{-1, -0.5, 0, 0.5, 1})
	row, err := db.Get(1)
	is.NoErr(err)
	is.Equal(row.Samples, 250)
}

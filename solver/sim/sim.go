// Package sim is a local stand-in for a quantum annealer. Every spin is
// sampled independently from its Boltzmann distribution at an effective
// inverse temperature, which is what an uncoupled annealer ideally returns
// for a pure field problem.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
	"unsafe"

	"github.com/cespare/xxhash"
	"github.com/rs/zerolog/log"
	"lukechampine.com/frand"

	"github.com/domino14/spintable/solver"
)

var ErrInjectedFailure = errors.New("simulated solver failure")

// Config describes the simulated device.
type Config struct {
	NumQubits int
	// Broken qubits are left out of Nodes and always read back as unused.
	Broken []int
	HMin   float64
	HMax   float64
	Beta   float64
	// MaxReads bounds a single request, like a real device's num_reads limit.
	MaxReads int
	// Latency delays every answer.
	Latency time.Duration
	// FailureRate is the probability that a request fails after submission.
	FailureRate float64
}

func DefaultConfig() Config {
	return Config{
		NumQubits: 128,
		HMin:      -2,
		HMax:      2,
		Beta:      1,
		MaxReads:  10000,
	}
}

// Solver is a simulated device. It is also its own solver.Session; Close is
// a no-op so the same Solver can be dialed repeatedly.
type Solver struct {
	cfg   Config
	nodes []int
}

func New(cfg Config) *Solver {
	broken := make(map[int]bool, len(cfg.Broken))
	for _, b := range cfg.Broken {
		broken[b] = true
	}
	nodes := make([]int, 0, cfg.NumQubits)
	for q := 0; q < cfg.NumQubits; q++ {
		if !broken[q] {
			nodes = append(nodes, q)
		}
	}
	return &Solver{cfg: cfg, nodes: nodes}
}

// Dial implements solver.Dialer.
func (s *Solver) Dial(ctx context.Context) (solver.Session, error) {
	return s, nil
}

func (s *Solver) Nodes() []int {
	return slices.Clone(s.nodes)
}

func (s *Solver) HRange() solver.DeviceRange {
	return solver.DeviceRange{Lower: s.cfg.HMin, Upper: s.cfg.HMax}
}

func (s *Solver) Close() error {
	return nil
}

// SubmitIsing checks the problem against the device and samples it in the
// background.
func (s *Solver) SubmitIsing(ctx context.Context, p solver.Problem, params solver.Params) (solver.Future, error) {
	if err := s.check(p, params); err != nil {
		return nil, err
	}
	fail := s.cfg.FailureRate > 0 && frand.Float64() < s.cfg.FailureRate
	return solver.Go(ctx, func(ctx context.Context) (solver.SampleSet, error) {
		if s.cfg.Latency > 0 {
			select {
			case <-time.After(s.cfg.Latency):
			case <-ctx.Done():
				return solver.SampleSet{}, ctx.Err()
			}
		}
		if fail {
			return solver.SampleSet{}, ErrInjectedFailure
		}
		return s.Sample(p, params.NumReads), nil
	}), nil
}

func (s *Solver) check(p solver.Problem, params solver.Params) error {
	if params.NumReads <= 0 {
		return fmt.Errorf("num_reads must be positive, got %d", params.NumReads)
	}
	if s.cfg.MaxReads > 0 && params.NumReads > s.cfg.MaxReads {
		return fmt.Errorf("num_reads %d exceeds the device limit of %d", params.NumReads, s.cfg.MaxReads)
	}
	active := make(map[int]bool, len(s.nodes))
	for _, n := range s.nodes {
		active[n] = true
	}
	for _, pe := range p {
		if pe.I != pe.J {
			return fmt.Errorf("coupler (%d, %d) is not supported by the simulator", pe.I, pe.J)
		}
		if !active[pe.I] {
			return fmt.Errorf("qubit %d is not active", pe.I)
		}
		if pe.Value < s.cfg.HMin || pe.Value > s.cfg.HMax {
			return fmt.Errorf("h[%d] = %g is outside %v", pe.I, pe.Value, s.HRange())
		}
	}
	return nil
}

// Sample draws reads of p and groups identical states.
func (s *Solver) Sample(p solver.Problem, reads int) solver.SampleSet {
	// P(down) for each addressed qubit; E = h*s favors s = -1 when h > 0.
	pDown := make(map[int]float64, len(p))
	for _, pe := range p {
		pDown[pe.I] = 1 / (1 + math.Exp(-2*s.cfg.Beta*pe.Value))
	}

	var ss solver.SampleSet
	index := make(map[uint64][]int)
	for r := 0; r < reads; r++ {
		state := make([]int8, s.cfg.NumQubits)
		for q := range state {
			pd, ok := pDown[q]
			switch {
			case !ok:
				state[q] = solver.Unused
			case frand.Float64() < pd:
				state[q] = solver.Down
			default:
				state[q] = solver.Up
			}
		}
		h := xxhash.Sum64(stateBytes(state))
		found := false
		for _, idx := range index[h] {
			if slices.Equal(ss.Solutions[idx], state) {
				ss.Occurrences[idx]++
				found = true
				break
			}
		}
		if !found {
			index[h] = append(index[h], len(ss.Solutions))
			ss.Solutions = append(ss.Solutions, state)
			ss.Occurrences = append(ss.Occurrences, 1)
		}
	}
	log.Debug().Int("reads", reads).Int("distinct", len(ss.Solutions)).Msg("sim-sampled")
	return ss
}

func stateBytes(state []int8) []byte {
	if len(state) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&state[0])), len(state))
}

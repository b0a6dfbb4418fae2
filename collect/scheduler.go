package collect

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/domino14/spintable/checkpoint"
	"github.com/domino14/spintable/solver"
)

var (
	ErrRoundTimeout     = errors.New("timed out waiting for a submitted problem")
	ErrRetriesExhausted = errors.New("round retries exhausted")
)

// RoundState is the progress of collection at one field value. It only
// moves forward when a whole round succeeds.
type RoundState struct {
	H         float64
	Remaining int
	Round     int
	Retries   int
}

// RoundSizes splits the next round into at most callsPerRound requests of
// at most callMax reads each, never asking for more than remaining.
func RoundSizes(remaining, callMax, callsPerRound int) []int {
	var sizes []int
	for len(sizes) < callsPerRound && remaining > 0 {
		n := min(callMax, remaining)
		sizes = append(sizes, n)
		remaining -= n
	}
	return sizes
}

type roundResult struct {
	batches   []solver.SampleSet
	submitted int
}

// Scheduler drives the submit/wait/retry protocol for a single session.
type Scheduler struct {
	sess    solver.Session
	spinIDs []int
	opts    Options
}

func NewScheduler(sess solver.Session, spinIDs []int, opts Options) *Scheduler {
	return &Scheduler{sess: sess, spinIDs: spinIDs, opts: opts}
}

// Collect gathers exactly opts.NumReads samples at h. A round that fails in
// any way contributes nothing and is resubmitted from scratch.
func (s *Scheduler) Collect(ctx context.Context, h float64) (*Tally, error) {
	tally := NewTally(h, s.spinIDs)
	st := RoundState{H: h, Remaining: s.opts.NumReads, Round: 1}
	rounds := int(math.Ceil(float64(st.Remaining) / float64(s.opts.CallMax*s.opts.CallsPerRound)))
	logger := log.With().Str("h", checkpoint.Key(h)).Logger()
	logger.Info().Int("num-reads", s.opts.NumReads).Msg("starting-collection")

	problem := solver.FieldProblem(s.spinIDs, h)
	for st.Remaining > 0 {
		logger.Info().Int("round", st.Round).Int("rounds", rounds).
			Int("calls-per-round", s.opts.CallsPerRound).Msg("collection-round")

		var res roundResult
		err := retry.Do(
			func() error {
				r, err := s.attemptRound(ctx, logger, problem, st)
				if err != nil {
					return err
				}
				res = r
				return nil
			},
			s.retryOptions(ctx, logger, &st)...,
		)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: h=%s round %d after %d failed attempts: %w",
				ErrRetriesExhausted, checkpoint.Key(h), st.Round, st.Retries, err)
		}
		st = applyRound(st, res, tally)
		logger.Info().Int("remaining", st.Remaining).Msg("round-complete")
	}
	logger.Info().Int("total-collected", tally.Samples).Msg("collection-done")
	return tally, nil
}

func (s *Scheduler) retryOptions(ctx context.Context, logger zerolog.Logger, st *RoundState) []retry.Option {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			st.Retries++
			logger.Warn().Err(err).Int("round", st.Round).Int("retries", st.Retries).
				Msg("resubmitting-round")
		}),
	}
	if s.opts.MaxRetries > 0 {
		opts = append(opts, retry.Attempts(s.opts.MaxRetries+1))
	} else {
		// Zero attempts means retry until success.
		opts = append(opts, retry.Attempts(0))
	}
	if s.opts.RetryDelay > 0 {
		opts = append(opts,
			retry.Delay(s.opts.RetryDelay),
			retry.MaxDelay(s.opts.MaxRetryDelay),
			retry.DelayType(retry.BackOffDelay))
	} else {
		opts = append(opts, retry.Delay(0), retry.DelayType(retry.FixedDelay))
	}
	return opts
}

func (s *Scheduler) params(reads int) solver.Params {
	p := solver.Params{
		NumReads:              reads,
		AnnealingTime:         s.opts.AnnealingTime,
		AutoScale:             false,
		FluxDriftCompensation: false,
	}
	if s.opts.SpinReversalTransformRate > 0 {
		p.NumSpinReversalTransforms = reads / s.opts.SpinReversalTransformRate
	}
	return p
}

// attemptRound submits the whole round before waiting on any of it, then
// collects the answers in submission order.
func (s *Scheduler) attemptRound(ctx context.Context, logger zerolog.Logger, problem solver.Problem, st RoundState) (roundResult, error) {
	sizes := RoundSizes(st.Remaining, s.opts.CallMax, s.opts.CallsPerRound)
	futures := make([]solver.Future, 0, len(sizes))
	done := false
	defer func() {
		if !done {
			for _, f := range futures {
				f.Cancel()
			}
		}
	}()

	submitted := 0
	for _, n := range sizes {
		logger.Debug().Int("reads", n).Int("remaining", st.Remaining-submitted).Msg("submit")
		f, err := s.sess.SubmitIsing(ctx, problem, s.params(n))
		if err != nil {
			return roundResult{}, s.roundErr(ctx, fmt.Errorf("submitting %d reads: %w", n, err))
		}
		futures = append(futures, f)
		submitted += n
	}

	logger.Debug().Int("calls", len(futures)).Msg("waiting")
	batches := make([]solver.SampleSet, 0, len(futures))
	for i, f := range futures {
		if !f.AwaitCompletion(ctx, s.opts.Timeout) {
			return roundResult{}, s.roundErr(ctx, fmt.Errorf("%w after %v (call %d of %d)",
				ErrRoundTimeout, s.opts.Timeout, i+1, len(futures)))
		}
		ss, err := f.Result()
		if err != nil {
			return roundResult{}, s.roundErr(ctx, fmt.Errorf("call %d of %d: %w", i+1, len(futures), err))
		}
		if err := ss.Validate(s.spinIDs); err != nil {
			return roundResult{}, fmt.Errorf("call %d of %d: %w", i+1, len(futures), err)
		}
		logger.Debug().Int("call", i+1).Int("calls", len(futures)).Msg("collected")
		batches = append(batches, ss)
	}
	done = true
	return roundResult{batches: batches, submitted: submitted}, nil
}

// roundErr stops the retry loop if the failure came from ctx ending.
func (s *Scheduler) roundErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return retry.Unrecoverable(ctx.Err())
	}
	return err
}

func applyRound(st RoundState, res roundResult, tally *Tally) RoundState {
	for _, ss := range res.batches {
		tally.Add(ss)
	}
	st.Remaining -= res.submitted
	st.Round++
	st.Retries = 0
	return st
}

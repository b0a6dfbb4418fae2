package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/domino14/spintable/checkpoint"
	"github.com/domino14/spintable/collect"
	"github.com/domino14/spintable/config"
	"github.com/domino14/spintable/solver"
	"github.com/domino14/spintable/solver/natssolver"
	"github.com/domino14/spintable/solver/sim"
	"github.com/domino14/spintable/stats"
)

const histogramBins = 10

func newDialer(p config.Profile) solver.Dialer {
	if p.Solver == config.SolverNats {
		return natssolver.Dialer{URL: p.NatsURL, Subject: p.Subject, Token: p.Token}
	}
	return sim.New(p.Sim.Config())
}

func options(cfg *config.Config) collect.Options {
	return collect.Options{
		Profile:                   cfg.ProfileName,
		Directory:                 cfg.Directory,
		HRange:                    cfg.HRange,
		HStep:                     cfg.HStep,
		SpinSet:                   cfg.SpinSet,
		SQLiteMirror:              cfg.SQLiteMirror,
		NumReads:                  cfg.NumReads,
		AnnealingTime:             cfg.AnnealingTime,
		SpinReversalTransformRate: cfg.SpinReversalTransformRate,
		Timeout:                   cfg.Timeout,
		CallMax:                   cfg.CallMax,
		CallsPerRound:             cfg.CallsPerRound,
		MaxRetries:                cfg.MaxRetries,
		RetryDelay:                cfg.RetryDelay,
		MaxRetryDelay:             cfg.MaxRetryDelay,
	}
}

// plotFractions draws how the spin-down fractions of one row are spread.
func plotFractions(w io.Writer, row checkpoint.Row, sum stats.Summary) error {
	// Hist needs a non-empty spread to size its bins.
	if len(sum.Fractions) == 0 || lo.Min(sum.Fractions) == lo.Max(sum.Fractions) {
		return nil
	}
	log.Debug().Str("h", checkpoint.Key(row.H)).Msg("spin-down-fractions")
	hist := histogram.Hist(histogramBins, sum.Fractions)
	return histogram.Fprint(w, hist, histogram.Linear(40))
}

func main() {
	cfg := &config.Config{}
	if err := cfg.Load(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("loading-config")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Info().Str("profile", cfg.ProfileName).Str("solver", cfg.Profile.Solver).
		Str("directory", cfg.Directory).Msg("loaded-config")

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	go func() {
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("got quit signal...")
		cancel()
	}()

	c := collect.NewCollector(newDialer(cfg.Profile), options(cfg))
	if cfg.Debug {
		c.OnRow = func(row checkpoint.Row, sum stats.Summary) {
			if err := plotFractions(os.Stderr, row, sum); err != nil {
				log.Err(err).Msg("plot-failed")
			}
		}
	}
	if err := c.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("collection-failed")
	}
	log.Info().Str("directory", cfg.Directory).Msg("collection-complete")
}

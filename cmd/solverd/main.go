package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/domino14/spintable/config"
	"github.com/domino14/spintable/solver/natssolver"
	"github.com/domino14/spintable/solver/sim"
)

func main() {
	cfg := &config.ServerConfig{}
	if err := cfg.Load(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("loading-config")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	nc, err := nats.Connect(cfg.NatsURL, nats.Name("solverd"))
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.NatsURL).Msg("nats-connect-failed")
	}
	defer nc.Close()

	device := sim.New(cfg.Profile.Sim.Config())

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	go func() {
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("got quit signal...")
		cancel()
	}()

	err = natssolver.Serve(ctx, nc, device, natssolver.ServerConfig{
		Subject:      cfg.Subject,
		Workers:      cfg.Workers,
		MaxSolveTime: cfg.MaxSolveTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("serve-failed")
	}
	log.Info().Msg("server gracefully shut down")
}

package natssolver

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/domino14/spintable/solver"
)

// ServerConfig tunes Serve.
type ServerConfig struct {
	Subject string
	// Workers bounds how many sample requests are solved at once.
	Workers int
	// MaxSolveTime bounds how long a single request may take.
	MaxSolveTime time.Duration
}

// Serve answers properties and sample requests with sess until ctx ends.
func Serve(ctx context.Context, nc *nats.Conn, sess solver.Session, cfg ServerConfig) error {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxSolveTime <= 0 {
		cfg.MaxSolveTime = time.Hour
	}

	handlers := errgroup.Group{}
	handlers.SetLimit(cfg.Workers)

	propSub, err := nc.Subscribe(propertiesSubject(cfg.Subject), func(m *nats.Msg) {
		if err := m.Respond(handleProperties(sess)); err != nil {
			log.Err(err).Msg("properties-respond-failed")
		}
	})
	if err != nil {
		return err
	}
	defer propSub.Unsubscribe()

	sampleSub, err := nc.Subscribe(sampleSubject(cfg.Subject), func(m *nats.Msg) {
		log.Debug().Int("bytes", len(m.Data)).Msg("sample-request")
		// Blocks the subscription when every worker is busy.
		handlers.Go(func() error {
			if err := m.Respond(handleSample(ctx, sess, m.Data, cfg.MaxSolveTime)); err != nil {
				log.Err(err).Msg("sample-respond-failed")
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	defer sampleSub.Unsubscribe()

	if err := nc.Flush(); err != nil {
		return err
	}
	if err := nc.LastError(); err != nil {
		return err
	}
	log.Info().Str("subject", cfg.Subject).Int("workers", cfg.Workers).Msg("serving-solver")

	<-ctx.Done()
	log.Info().Msg("solver-server-stopping")
	sampleSub.Unsubscribe()
	return handlers.Wait()
}

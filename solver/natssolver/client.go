// Package natssolver reaches a solver over NATS request/reply. Serve puts
// any solver.Session on the bus; Dialer is the matching client.
package natssolver

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/domino14/spintable/solver"
)

const DefaultSubject = "solver"

// Dialer connects to a solver served on Subject.
type Dialer struct {
	URL     string
	Subject string
	Token   string
	// PropertiesTimeout bounds the properties request made while dialing.
	PropertiesTimeout time.Duration
}

func (d Dialer) Dial(ctx context.Context) (solver.Session, error) {
	opts := []nats.Option{nats.Name("spintable")}
	if d.Token != "" {
		opts = append(opts, nats.Token(d.Token))
	}
	nc, err := nats.Connect(d.URL, opts...)
	if err != nil {
		return nil, err
	}
	subject := d.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	timeout := d.PropertiesTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	msg, err := nc.RequestWithContext(pctx, propertiesSubject(subject), nil)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("requesting solver properties: %w", err)
	}
	nodes, hRange, err := decodeProperties(msg.Data)
	if err != nil {
		nc.Close()
		return nil, err
	}
	log.Debug().Str("url", d.URL).Str("subject", subject).Int("nodes", len(nodes)).Msg("nats-session-open")
	return &session{nc: nc, subject: subject, nodes: nodes, hRange: hRange}, nil
}

type session struct {
	nc      *nats.Conn
	subject string
	nodes   []int
	hRange  solver.DeviceRange

	mu      sync.Mutex
	pending []*solver.AsyncResult
}

func (s *session) Nodes() []int {
	return s.nodes
}

func (s *session) HRange() solver.DeviceRange {
	return s.hRange
}

func (s *session) SubmitIsing(ctx context.Context, p solver.Problem, params solver.Params) (solver.Future, error) {
	data, err := json.Marshal(sampleRequest{Problem: p, Params: params})
	if err != nil {
		return nil, err
	}
	f := solver.Go(ctx, func(ctx context.Context) (solver.SampleSet, error) {
		msg, err := s.nc.RequestWithContext(ctx, sampleSubject(s.subject), data)
		if err != nil {
			if s.nc.LastError() != nil {
				log.Error().Err(s.nc.LastError()).Msg("nats-last-error")
			}
			return solver.SampleSet{}, err
		}
		return decodeSample(msg.Data)
	})
	s.track(f)
	return f, nil
}

// track remembers f until it finishes so Close can abandon it.
func (s *session) track(f *solver.AsyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = slices.DeleteFunc(s.pending, (*solver.AsyncResult).Done)
	s.pending = append(s.pending, f)
}

// Close abandons anything still in flight and closes the connection.
func (s *session) Close() error {
	s.mu.Lock()
	for _, f := range s.pending {
		if !f.Done() {
			f.Cancel()
		}
	}
	s.pending = nil
	s.mu.Unlock()
	s.nc.Close()
	return nil
}

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/domino14/spintable/checkpoint"
	"github.com/domino14/spintable/config"
	"github.com/domino14/spintable/solver/natssolver"
	"github.com/domino14/spintable/solver/sim"
	"github.com/domino14/spintable/stats"
)

func TestNewDialer(t *testing.T) {
	is := is.New(t)
	p := config.DefaultProfile()
	p.Sim.NumQubits = 4
	p.Sim.Broken = []int{2}

	d, ok := newDialer(p).(*sim.Solver)
	is.True(ok)
	sess, err := d.Dial(context.Background())
	is.NoErr(err)
	is.Equal(sess.Nodes(), []int{0, 1, 3})

	p.Solver = config.SolverNats
	p.NatsURL = "nats://127.0.0.1:4222"
	p.Subject = "lab"
	nd, ok := newDialer(p).(natssolver.Dialer)
	is.True(ok)
	is.Equal(nd.URL, "nats://127.0.0.1:4222")
	is.Equal(nd.Subject, "lab")
}

func TestOptions(t *testing.T) {
	is := is.New(t)
	cfg := &config.Config{
		ProfileName:   "local",
		Directory:     "out",
		HRange:        1,
		HStep:         0.5,
		NumReads:      30,
		SpinSet:       []int{1, 2},
		AnnealingTime: 5,
		Timeout:       time.Second,
		CallMax:       10,
		CallsPerRound: 2,
		MaxRetries:    3,
		SQLiteMirror:  true,
	}
	o := options(cfg)
	is.NoErr(o.Validate())
	is.Equal(o.Profile, "local")
	is.Equal(o.Directory, "out")
	is.Equal(o.SpinSet, []int{1, 2})
	is.Equal(o.NumReads, 30)
	is.Equal(o.CallsPerRound, 2)
	is.Equal(o.MaxRetries, uint(3))
	is.True(o.SQLiteMirror)
}

func TestPlotFractions(t *testing.T) {
	is := is.New(t)
	var buf bytes.Buffer
	row := checkpoint.Row{H: 0.5, Samples: 10, SpinDown: []int{1, 5, 9}}
	is.NoErr(plotFractions(&buf, row, stats.Summarize(row.SpinDown, row.Samples)))
	is.True(buf.Len() > 0)

	buf.Reset()
	is.NoErr(plotFractions(&buf, checkpoint.Row{}, stats.Summary{}))
	is.Equal(buf.Len(), 0)

	// All spins alike: nothing to plot.
	row = checkpoint.Row{H: 0, Samples: 10, SpinDown: []int{5, 5}}
	is.NoErr(plotFractions(&buf, row, stats.Summarize(row.SpinDown, row.Samples)))
	is.Equal(buf.Len(), 0)
}

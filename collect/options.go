package collect

import (
	"errors"
	"fmt"
	"time"

	"github.com/domino14/spintable/sweep"
)

// Options configure a collection run.
type Options struct {
	Profile   string
	Directory string
	HRange    float64
	HStep     float64
	// SpinSet restricts collection to these spin ids when non-empty.
	SpinSet []int
	// SQLiteMirror also records rows in spin_table.db.
	SQLiteMirror bool

	NumReads                  int
	AnnealingTime             int
	SpinReversalTransformRate int
	Timeout                   time.Duration

	CallMax       int
	CallsPerRound int

	// MaxRetries bounds consecutive failed attempts of one round; zero
	// retries forever.
	MaxRetries    uint
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

const (
	DefaultCallMax       = 10000
	DefaultCallsPerRound = 10
)

func DefaultOptions() Options {
	return Options{
		HRange:        2.0,
		HStep:         0.025,
		NumReads:      100000,
		AnnealingTime: 1,
		Timeout:       3000 * time.Second,
		CallMax:       DefaultCallMax,
		CallsPerRound: DefaultCallsPerRound,
		RetryDelay:    time.Second,
		MaxRetryDelay: time.Minute,
	}
}

func (o Options) Validate() error {
	switch {
	case o.Directory == "":
		return errors.New("a working directory is required")
	case o.HStep < sweep.MinStep:
		return fmt.Errorf("h step must be at least %v, got %v", sweep.MinStep, o.HStep)
	case o.HRange < 0:
		return fmt.Errorf("h range must not be negative, got %v", o.HRange)
	case o.NumReads <= 0:
		return fmt.Errorf("num reads must be positive, got %d", o.NumReads)
	case o.CallMax <= 0:
		return fmt.Errorf("call max must be positive, got %d", o.CallMax)
	case o.CallsPerRound <= 0:
		return fmt.Errorf("calls per round must be positive, got %d", o.CallsPerRound)
	case o.Timeout <= 0:
		return fmt.Errorf("timeout must be positive, got %v", o.Timeout)
	case o.SpinReversalTransformRate < 0:
		return fmt.Errorf("spin reversal transform rate must not be negative, got %d", o.SpinReversalTransformRate)
	}
	return nil
}

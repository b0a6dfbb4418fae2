package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/domino14/spintable/solver/sim"
)

const (
	// LocalProfile needs no config file; it selects the simulator.
	LocalProfile = "local"

	SolverSim  = "sim"
	SolverNats = "nats"

	envPrefix = "SPINTABLE"
)

var ErrUnknownProfile = errors.New("unknown profile")

// SimProfile describes a simulated device.
type SimProfile struct {
	NumQubits   int           `mapstructure:"num-qubits"`
	Broken      []int         `mapstructure:"broken"`
	HMin        float64       `mapstructure:"h-min"`
	HMax        float64       `mapstructure:"h-max"`
	Beta        float64       `mapstructure:"beta"`
	MaxReads    int           `mapstructure:"max-reads"`
	Latency     time.Duration `mapstructure:"latency"`
	FailureRate float64       `mapstructure:"failure-rate"`
}

func (s SimProfile) Config() sim.Config {
	return sim.Config{
		NumQubits:   s.NumQubits,
		Broken:      s.Broken,
		HMin:        s.HMin,
		HMax:        s.HMax,
		Beta:        s.Beta,
		MaxReads:    s.MaxReads,
		Latency:     s.Latency,
		FailureRate: s.FailureRate,
	}
}

// Profile holds the connection details for one named solver.
type Profile struct {
	Solver  string     `mapstructure:"solver"`
	NatsURL string     `mapstructure:"nats-url"`
	Subject string     `mapstructure:"subject"`
	Token   string     `mapstructure:"token"`
	Sim     SimProfile `mapstructure:"sim"`
}

func DefaultProfile() Profile {
	d := sim.DefaultConfig()
	return Profile{
		Solver:  SolverSim,
		Subject: "solver",
		Sim: SimProfile{
			NumQubits: d.NumQubits,
			HMin:      d.HMin,
			HMax:      d.HMax,
			Beta:      d.Beta,
			MaxReads:  d.MaxReads,
		},
	}
}

// Config is everything a collection run needs.
type Config struct {
	ConfigFile  string
	ProfileName string
	Profile     Profile
	Debug       bool

	Directory                 string
	HRange                    float64
	HStep                     float64
	NumReads                  int
	SpinSet                   []int
	AnnealingTime             int
	SpinReversalTransformRate int
	Timeout                   time.Duration

	CallMax       int
	CallsPerRound int
	MaxRetries    uint
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	SQLiteMirror  bool
}

// DefaultConfigFile is where profiles are looked up unless overridden.
func DefaultConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".spintable.yaml"
	}
	return filepath.Join(home, ".spintable.yaml")
}

func newViper(fset *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fset); err != nil {
		return nil, err
	}
	return v, nil
}

// Load parses command line arguments; SPINTABLE_* environment variables
// fill in anything not given on the command line.
func (c *Config) Load(args []string) error {
	fset := pflag.NewFlagSet("spintable", pflag.ContinueOnError)
	fset.String("config", DefaultConfigFile(), "file holding connection profiles")
	fset.StringP("profile", "p", "", "connection profile to load from the config file")
	fset.StringP("directory", "d", "", "working directory")
	fset.Float64("h-range", 2.0, "the maximum magnitude of h values to sweep")
	fset.Float64("h-step", 0.025, "step size between consecutive h values")
	fset.Int("num-reads", 100000, "number of samples to take for each h value")
	fset.IntSlice("spin-set", nil, "a set of spins used to filter the hardware graph")
	fset.Int("annealing-time", 1, "annealing time in microseconds")
	fset.Int("spin-reversal-transform-rate", 0, "the number of reads to take before each spin reversal transform")
	fset.Int("timeout", 3000, "seconds to wait on a submitted problem before the round is resubmitted")
	fset.Int("call-max", 10000, "maximum reads in a single request")
	fset.Int("calls-per-round", 10, "requests submitted before waiting on any of them")
	fset.Uint("max-retries", 0, "failed attempts allowed per round; 0 retries forever")
	fset.Duration("retry-delay", time.Second, "initial delay before resubmitting a failed round")
	fset.Duration("max-retry-delay", time.Minute, "upper bound on the resubmission delay")
	fset.Bool("sqlite-mirror", false, "also record rows in spin_table.db")
	fset.Bool("debug", false, "debug logging")
	if err := fset.Parse(args); err != nil {
		return err
	}
	v, err := newViper(fset)
	if err != nil {
		return err
	}

	c.ConfigFile = v.GetString("config")
	c.ProfileName = v.GetString("profile")
	c.Debug = v.GetBool("debug")
	c.Directory = v.GetString("directory")
	c.HRange = v.GetFloat64("h-range")
	c.HStep = v.GetFloat64("h-step")
	c.NumReads = v.GetInt("num-reads")
	c.SpinSet = v.GetIntSlice("spin-set")
	c.AnnealingTime = v.GetInt("annealing-time")
	c.SpinReversalTransformRate = v.GetInt("spin-reversal-transform-rate")
	c.Timeout = time.Duration(v.GetInt("timeout")) * time.Second
	c.CallMax = v.GetInt("call-max")
	c.CallsPerRound = v.GetInt("calls-per-round")
	c.MaxRetries = v.GetUint("max-retries")
	c.RetryDelay = v.GetDuration("retry-delay")
	c.MaxRetryDelay = v.GetDuration("max-retry-delay")
	c.SQLiteMirror = v.GetBool("sqlite-mirror")

	if c.ProfileName == "" {
		return errors.New("a profile is required")
	}
	if c.Directory == "" {
		return errors.New("a working directory is required")
	}
	c.Profile, err = LoadProfile(c.ConfigFile, c.ProfileName)
	return err
}

// LoadProfile reads the named profile from the YAML file at path:
//
//	profiles:
//	  lab:
//	    solver: nats
//	    nats-url: nats://solver.example:4222
//
// The local profile is built in and only read from the file if the file
// defines it.
func LoadProfile(path, name string) (Profile, error) {
	p := DefaultProfile()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if name == LocalProfile {
			return p, nil
		}
		return p, fmt.Errorf("%w %q: config file %s does not exist", ErrUnknownProfile, name, path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return p, fmt.Errorf("reading %s: %w", path, err)
	}
	sub := v.Sub("profiles." + name)
	if sub == nil {
		if name == LocalProfile {
			return p, nil
		}
		return p, fmt.Errorf("%w %q in %s", ErrUnknownProfile, name, path)
	}
	if err := sub.Unmarshal(&p); err != nil {
		return p, fmt.Errorf("profile %q: %w", name, err)
	}
	switch p.Solver {
	case SolverSim:
	case SolverNats:
		if p.NatsURL == "" {
			return p, fmt.Errorf("profile %q: nats-url is required", name)
		}
	default:
		return p, fmt.Errorf("profile %q: unknown solver %q", name, p.Solver)
	}
	return p, nil
}

// ServerConfig configures the solver server.
type ServerConfig struct {
	ConfigFile   string
	ProfileName  string
	Profile      Profile
	NatsURL      string
	Subject      string
	Workers      int
	MaxSolveTime time.Duration
	Debug        bool
}

// Load parses the solver server's arguments. The profile must describe a
// simulated device; it is what gets served.
func (c *ServerConfig) Load(args []string) error {
	fset := pflag.NewFlagSet("solverd", pflag.ContinueOnError)
	fset.String("config", DefaultConfigFile(), "file holding connection profiles")
	fset.StringP("profile", "p", LocalProfile, "simulated device profile to serve")
	fset.String("nats-url", "nats://127.0.0.1:4222", "NATS server to serve on")
	fset.String("subject", "solver", "base subject to answer on")
	fset.Int("workers", 4, "requests solved at once")
	fset.Duration("max-solve-time", time.Hour, "longest a single request may take")
	fset.Bool("debug", false, "debug logging")
	if err := fset.Parse(args); err != nil {
		return err
	}
	v, err := newViper(fset)
	if err != nil {
		return err
	}
	c.ConfigFile = v.GetString("config")
	c.ProfileName = v.GetString("profile")
	c.NatsURL = v.GetString("nats-url")
	c.Subject = v.GetString("subject")
	c.Workers = v.GetInt("workers")
	c.MaxSolveTime = v.GetDuration("max-solve-time")
	c.Debug = v.GetBool("debug")

	c.Profile, err = LoadProfile(c.ConfigFile, c.ProfileName)
	if err != nil {
		return err
	}
	if c.Profile.Solver != SolverSim {
		return fmt.Errorf("profile %q is not a simulated device", c.ProfileName)
	}
	return nil
}

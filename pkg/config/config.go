/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package config loads the configuration of a simulation driver.
//
// Values are taken from, in increasing order of precedence, the defaults,
// MIRSIM_ prefixed environment variables, a YAML file named by --config,
// and the command line.
package config

import (
	"bytes"
	"io"
	"os"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"
	"gopkg.in/yaml.v3"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
)

const EnvPrefix = "MIRSIM_"

// TimeModel bounds the random choices of the clock model.
type TimeModel struct {
	StartTime           int64 `yaml:"startTime"           env:"START"`
	MaxDriftPermille    int64 `yaml:"maxDriftPermille"    env:"MAX_DRIFT"`
	MaxClockOffset      int64 `yaml:"maxClockOffset"      env:"MAX_OFFSET"`
	TrueTimeUncertainty int64 `yaml:"trueTimeUncertainty" env:"UNCERTAINTY"`
	MinFlightTime       int64 `yaml:"minFlightTime"       env:"MIN_FLIGHT"`
	MaxFlightTime       int64 `yaml:"maxFlightTime"       env:"MAX_FLIGHT"`
}

type Config struct {
	Seed int64 `yaml:"seed" env:"SEED"`

	// Sims is the number of seeds to run, starting at Seed.
	Sims int `yaml:"sims" env:"SIMS"`

	// Det runs every seed twice and compares the digests.
	Det bool `yaml:"det" env:"DET"`

	MaxSteps  uint64 `yaml:"maxSteps"  env:"MAX_STEPS"`
	TimeLimit int64  `yaml:"timeLimit" env:"TIME_LIMIT"` // virtual time, zero for none

	LogLevel string `yaml:"logLevel" env:"LOG_LEVEL"`
	LogDir   string `yaml:"logDir"   env:"LOG_DIR"` // event logs are recorded here when set
	Verbose  bool   `yaml:"verbose"  env:"VERBOSE"` // mirror the event log to stdout

	ArenaSize uint64 `yaml:"arenaSize" env:"ARENA_SIZE"`

	TimeModel TimeModel `yaml:"timeModel" envPrefix:"TIME_"`
}

func Default() *Config {
	dm := clock.DefaultModelParams
	return &Config{
		Seed:      1,
		Sims:      1,
		MaxSteps:  100000,
		TimeLimit: 0,
		LogLevel:  "info",
		TimeModel: TimeModel{
			StartTime:           int64(dm.StartTime),
			MaxDriftPermille:    dm.MaxDriftPermille,
			MaxClockOffset:      int64(dm.MaxClockOffset),
			TrueTimeUncertainty: int64(dm.TrueTimeUncertainty),
			MinFlightTime:       int64(dm.MinFlightTime),
			MaxFlightTime:       int64(dm.MaxFlightTime),
		},
	}
}

// ApplyEnv overrides the values present in environ, which defaults to the
// process environment when nil.
func (c *Config) ApplyEnv(environ map[string]string) error {
	err := env.ParseWithOptions(c, env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	})
	return errors.WithMessage(err, "could not parse environment")
}

// ApplyFile overrides the values present in the YAML file at path.
// Unknown keys are rejected.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WithMessagef(err, "could not read config file %s", path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return errors.WithMessagef(err, "could not unmarshal config file %s", path)
	}
	return nil
}

// ModelParams converts the time model for the clock package.
func (c *Config) ModelParams() clock.ModelParams {
	return clock.ModelParams{
		StartTime:           clock.Time(c.TimeModel.StartTime),
		MaxDriftPermille:    c.TimeModel.MaxDriftPermille,
		MaxClockOffset:      clock.Duration(c.TimeModel.MaxClockOffset),
		TrueTimeUncertainty: clock.Duration(c.TimeModel.TrueTimeUncertainty),
		MinFlightTime:       clock.Duration(c.TimeModel.MinFlightTime),
		MaxFlightTime:       clock.Duration(c.TimeModel.MaxFlightTime),
	}
}

// Level is the parsed log level.
func (c *Config) Level() logging.LogLevel {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}

func (c *Config) Validate() error {
	switch {
	case c.Sims < 1:
		return errors.Errorf("at least one simulation must run, got %d", c.Sims)
	case c.TimeLimit < 0:
		return errors.Errorf("time limit must not be negative, got %d", c.TimeLimit)
	case c.MaxSteps == 0 && c.TimeLimit == 0:
		return errors.Errorf("either a step budget or a time limit is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return errors.WithMessage(c.ModelParams().Validate(), "invalid time model")
}

// Load builds the configuration from environ and the command line args,
// starting from defaults or Default() when nil.  The file named by
// --config is applied before the remaining flags.
func Load(name string, defaults *Config, args []string, environ map[string]string) (*Config, error) {
	if defaults == nil {
		defaults = Default()
	}
	c, file, err := load(name, defaults, args, environ, "")
	if err != nil || file == "" {
		return c, err
	}
	c, _, err = load(name, defaults, args, environ, file)
	return c, err
}

func load(name string, defaults *Config, args []string, environ map[string]string, file string) (*Config, string, error) {
	copied := *defaults
	c := &copied
	if err := c.ApplyEnv(environ); err != nil {
		return nil, "", err
	}
	if file != "" {
		if err := c.ApplyFile(file); err != nil {
			return nil, "", err
		}
	}

	var configFile string
	app := kingpin.New(name, "Runs deterministic simulations.")
	app.Flag("config", "YAML file with configuration values.").StringVar(&configFile)
	c.register(app)
	if _, err := app.Parse(args); err != nil {
		return nil, "", err
	}

	if err := c.Validate(); err != nil {
		return nil, "", err
	}
	return c, configFile, nil
}

// register binds flags to the fields of c, defaulting to their current
// values.
func (c *Config) register(app *kingpin.Application) {
	i64 := func(v int64) string { return strconv.FormatInt(v, 10) }
	u64 := func(v uint64) string { return strconv.FormatUint(v, 10) }

	app.Flag("seed", "Seed of the first simulation.").Default(i64(c.Seed)).Int64Var(&c.Seed)
	app.Flag("sims", "Number of simulations, with consecutive seeds.").Default(strconv.Itoa(c.Sims)).IntVar(&c.Sims)
	app.Flag("det", "Run every simulation twice and compare the digests.").Default(strconv.FormatBool(c.Det)).BoolVar(&c.Det)
	app.Flag("max-steps", "Step budget of a simulation, zero for none.").Default(u64(c.MaxSteps)).Uint64Var(&c.MaxSteps)
	app.Flag("time-limit", "Virtual time limit of a simulation, zero for none.").Default(i64(c.TimeLimit)).Int64Var(&c.TimeLimit)
	app.Flag("log-level", "Level of the console log.").Default(c.LogLevel).EnumVar(&c.LogLevel, "debug", "info", "warn", "error")
	app.Flag("log-dir", "Directory to record event logs to.").Default(c.LogDir).StringVar(&c.LogDir)
	app.Flag("verbose", "Print the event log while simulating.").Default(strconv.FormatBool(c.Verbose)).BoolVar(&c.Verbose)
	app.Flag("arena-size", "Bytes of memory per actor.").Default(u64(c.ArenaSize)).Uint64Var(&c.ArenaSize)
	app.Flag("max-drift", "Bound of clock drifts in permille.").Default(i64(c.TimeModel.MaxDriftPermille)).Int64Var(&c.TimeModel.MaxDriftPermille)
	app.Flag("max-clock-offset", "Bound of wall clock offsets.").Default(i64(c.TimeModel.MaxClockOffset)).Int64Var(&c.TimeModel.MaxClockOffset)
	app.Flag("min-flight-time", "Lower bound of packet latencies.").Default(i64(c.TimeModel.MinFlightTime)).Int64Var(&c.TimeModel.MinFlightTime)
	app.Flag("max-flight-time", "Upper bound of packet latencies.").Default(i64(c.TimeModel.MaxFlightTime)).Int64Var(&c.TimeModel.MaxFlightTime)
}

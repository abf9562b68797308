package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/leftright/internal/stress"
)

// Run implements subcommands.Command for the "run" command.
type Run struct {
	config      string
	readers     int
	writers     int
	writes      int
	reads       int
	maxAttempts int
	jitter      time.Duration
	seed        uint64
}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "hammer a leftright.Value and check every read is whole and in order"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run [flags]
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Run) SetFlags(f *flag.FlagSet) {
	def := stress.DefaultConfig()
	f.StringVar(&r.config, "config", "", "toml file to read the run from; flags override it.")
	f.IntVar(&r.readers, "readers", def.Readers, "number of reading goroutines.")
	f.IntVar(&r.writers, "writers", def.Writers, "number of writing goroutines.")
	f.IntVar(&r.writes, "writes", def.Writes, "increments per writer.")
	f.IntVar(&r.reads, "reads", def.Reads, "reads per reader.")
	f.IntVar(&r.maxAttempts, "max-attempts", def.MaxAttempts, "fail a read that takes more attempts than this; 0 for no bound.")
	f.DurationVar(&r.jitter, "jitter", def.Jitter.Duration, "upper bound of a random pause between writes.")
	f.Uint64Var(&r.seed, "seed", def.Seed, "seed for the writers' jitter.")
}

// buildConfig returns the run described by the config file, if any, with the
// flags that were set on f applied on top.
func (r *Run) buildConfig(f *flag.FlagSet) (stress.Config, error) {
	cfg := stress.DefaultConfig()
	if r.config != "" {
		var err error
		if cfg, err = stress.LoadConfig(r.config); err != nil {
			return stress.Config{}, err
		}
	}
	f.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "readers":
			cfg.Readers = r.readers
		case "writers":
			cfg.Writers = r.writers
		case "writes":
			cfg.Writes = r.writes
		case "reads":
			cfg.Reads = r.reads
		case "max-attempts":
			cfg.MaxAttempts = r.maxAttempts
		case "jitter":
			cfg.Jitter = stress.Duration{Duration: r.jitter}
		case "seed":
			cfg.Seed = r.seed
		}
	})
	return cfg, cfg.Validate()
}

// Execute implements subcommands.Command.Execute.
func (r *Run) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	log := args[0].(*logrus.Logger)

	cfg, err := r.buildConfig(f)
	if err != nil {
		log.WithError(err).Error("bad configuration")
		return subcommands.ExitUsageError
	}

	rep, err := stress.Run(ctx, cfg, log)
	if err != nil {
		log.WithError(err).WithField("reads", rep.Reads).Error("stress run failed")
		return subcommands.ExitFailure
	}
	fmt.Printf("reads=%d writes=%d retries=%d max_attempts=%d final=%d elapsed=%v\n",
		rep.Reads, rep.Writes, rep.Retries, rep.MaxAttempts, rep.Final, rep.Elapsed)
	return subcommands.ExitSuccess
}

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

// Bench implements subcommands.Command for the "bench" command.
type Bench struct {
	cfg stress.BenchConfig
}

// Name implements subcommands.Command.Name.
func (*Bench) Name() string {
	return "bench"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Bench) Synopsis() string {
	return "compare read throughput against atomic.Pointer and sync.RWMutex"
}

// Usage implements subcommands.Command.Usage.
func (*Bench) Usage() string {
	return `bench [flags]
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Bench) SetFlags(f *flag.FlagSet) {
	f.IntVar(&b.cfg.Readers, "readers", 4, "number of reading goroutines.")
	f.DurationVar(&b.cfg.Duration, "duration", time.Second, "how long to run each container.")
	f.DurationVar(&b.cfg.Interval, "interval", time.Millisecond, "pause between writes; 0 writes back to back.")
}

// Execute implements subcommands.Command.Execute.
func (b *Bench) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	log := args[0].(*logrus.Logger)

	results, err := stress.Bench(ctx, b.cfg, log)
	if err != nil {
		log.WithError(err).Error("bench failed")
		return subcommands.ExitFailure
	}
	for _, res := range results {
		fmt.Printf("%-10s %14.0f reads/s %10d writes\n", res.Name, res.ReadsPerSecond(), res.Writes)
	}
	return subcommands.ExitSuccess
}

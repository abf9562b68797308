// Package stress hammers a leftright.Value with one or more writers and many
// readers and checks that no reader ever accepts a torn or stale-backwards
// value.
package stress

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/leftright"
	"github.com/zeebo/pcg"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrTorn is returned when a reader accepted a value that mixed two writes.
	ErrTorn = errors.New("reader accepted a torn value")
	// ErrOutOfOrder is returned when a reader saw the value go backwards or
	// past the number of writes.
	ErrOutOfOrder = errors.New("reader saw an impossible value")
	// ErrTooManyAttempts is returned when a read needed more attempts than
	// Config.MaxAttempts.
	ErrTooManyAttempts = errors.New("read exceeded max attempts")
)

// sample is the payload under test. check always holds the complement of n,
// so a read that straddles two writes shows up as a mismatch.
type sample struct {
	n     atomic.Uint64
	check atomic.Uint64
}

func (s *sample) CopyFrom(src *sample) {
	s.n.Store(src.n.Load())
	s.check.Store(src.check.Load())
}

func (s *sample) init() {
	s.check.Store(^uint64(0))
}

// increment is applied to both instances by every write.
func increment(s *sample) {
	n := s.n.Load() + 1
	s.n.Store(n)
	s.check.Store(^n)
}

// container is what both leftright.Value and leftright.Shared provide.
type container interface {
	TryRead(func(*sample)) bool
	Write(func(*sample))
	Gen() uint64
}

// Report summarizes a run.
type Report struct {
	Reads       uint64
	Writes      uint64
	Retries     uint64
	MaxAttempts int
	Final       uint64
	Elapsed     time.Duration
}

// Run performs the run described by cfg. It returns the first violation any
// reader found, or ctx's error if it was canceled first.
func Run(ctx context.Context, cfg Config, log logrus.FieldLogger) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}

	var c container
	if cfg.Writers == 1 {
		v := new(leftright.Value[sample])
		v.Write(func(s *sample) { s.init() })
		c = v
	} else {
		v := new(leftright.Shared[sample])
		v.Write(func(s *sample) { s.init() })
		c = v
	}
	// the initializing write is not part of the run.
	gen0 := c.Gen()
	total := uint64(cfg.Writers) * uint64(cfg.Writes)

	log.WithFields(logrus.Fields{
		"readers": cfg.Readers,
		"writers": cfg.Writers,
		"writes":  cfg.Writes,
		"reads":   cfg.Reads,
	}).Debug("starting stress run")

	var (
		retries     atomic.Uint64
		reads       atomic.Uint64
		maxAttempts atomic.Int64
	)

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Writers; w++ {
		pause := newJitter(cfg.Seed, w, cfg.Jitter.Duration)
		g.Go(func() error {
			return writer(ctx, c, cfg.Writes, pause)
		})
	}
	for r := 0; r < cfg.Readers; r++ {
		id := r
		g.Go(func() error {
			rs, err := reader(ctx, c, cfg, total)
			reads.Add(rs.reads)
			retries.Add(rs.retries)
			for {
				cur := maxAttempts.Load()
				if int64(rs.maxAttempts) <= cur || maxAttempts.CompareAndSwap(cur, int64(rs.maxAttempts)) {
					break
				}
			}
			if err != nil {
				return fmt.Errorf("reader %d: %w", id, err)
			}
			return nil
		})
	}
	err := g.Wait()

	rep := Report{
		Reads:       reads.Load(),
		Writes:      c.Gen() - gen0,
		Retries:     retries.Load(),
		MaxAttempts: int(maxAttempts.Load()),
		Elapsed:     time.Since(start),
	}
	for !c.TryRead(func(s *sample) { rep.Final = s.n.Load() }) {
	}
	if err != nil {
		return rep, err
	}

	if rep.Final != total {
		return rep, fmt.Errorf("%w: final value %d after %d writes", ErrOutOfOrder, rep.Final, total)
	}

	log.WithFields(logrus.Fields{
		"reads":        rep.Reads,
		"writes":       rep.Writes,
		"retries":      rep.Retries,
		"max_attempts": rep.MaxAttempts,
		"elapsed":      rep.Elapsed,
	}).Info("stress run passed")

	return rep, nil
}

// newJitter returns the pauses writer id takes between its writes. Each
// writer gets its own pcg stream of the seed.
func newJitter(seed uint64, id int, bound time.Duration) func() time.Duration {
	rng := pcg.New(seed, uint64(id))
	return func() time.Duration {
		if bound <= 0 {
			return 0
		}
		return time.Duration(rng.Uint32()) % bound
	}
}

func writer(ctx context.Context, c container, writes int, pause func() time.Duration) error {
	for i := 0; i < writes; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.Write(increment)
		if d := pause(); d > 0 {
			time.Sleep(d)
		}
	}
	return nil
}

type readerStats struct {
	reads       uint64
	retries     uint64
	maxAttempts int
}

func reader(ctx context.Context, c container, cfg Config, total uint64) (rs readerStats, err error) {
	var last uint64
	var n, check uint64
	observe := func(s *sample) {
		n, check = s.n.Load(), s.check.Load()
	}

	for i := 0; i < cfg.Reads; i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return rs, err
			}
		}

		attempts := 1
		for !c.TryRead(observe) {
			attempts++
			if cfg.MaxAttempts > 0 && attempts > cfg.MaxAttempts {
				return rs, fmt.Errorf("%w: %d attempts", ErrTooManyAttempts, attempts)
			}
		}
		rs.reads++
		rs.retries += uint64(attempts - 1)
		if attempts > rs.maxAttempts {
			rs.maxAttempts = attempts
		}

		switch {
		case check != ^n:
			return rs, fmt.Errorf("%w: n=%d check=%#x", ErrTorn, n, check)
		case n < last:
			return rs, fmt.Errorf("%w: %d after %d", ErrOutOfOrder, n, last)
		case n > total:
			return rs, fmt.Errorf("%w: %d with only %d writes", ErrOutOfOrder, n, total)
		}
		last = n
	}
	return rs, nil
}

package stress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/leftright"
	"golang.org/x/sync/errgroup"
)

// BenchConfig describes a throughput comparison.
type BenchConfig struct {
	Readers  int
	Duration time.Duration
	// Interval is the pause between writes. Zero writes back to back.
	Interval time.Duration
}

// Result is the throughput one container achieved.
type Result struct {
	Name    string
	Reads   uint64
	Writes  uint64
	Elapsed time.Duration
}

// ReadsPerSecond is the aggregate read throughput across all readers.
func (r Result) ReadsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Reads) / r.Elapsed.Seconds()
}

// snapshot is what each benchmarked container provides.
type snapshot interface {
	read() uint64
	write(n uint64)
}

type leftrightSnapshot struct{ v leftright.Value[sample] }

func (s *leftrightSnapshot) read() uint64 {
	return leftright.Read(&s.v, func(x *sample) uint64 { return x.n.Load() })
}

func (s *leftrightSnapshot) write(n uint64) {
	s.v.Write(func(x *sample) {
		x.n.Store(n)
		x.check.Store(^n)
	})
}

// rcuSnapshot replaces an immutable copy on every write.
type rcuSnapshot struct{ p atomic.Pointer[[2]uint64] }

func (s *rcuSnapshot) read() uint64 {
	if p := s.p.Load(); p != nil {
		return p[0]
	}
	return 0
}

func (s *rcuSnapshot) write(n uint64) { s.p.Store(&[2]uint64{n, ^n}) }

type rwmutexSnapshot struct {
	mu       sync.RWMutex
	n, check uint64
}

func (s *rwmutexSnapshot) read() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.n
}

func (s *rwmutexSnapshot) write(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n, s.check = n, ^n
}

// Bench measures read throughput with one concurrent writer for a
// leftright.Value, an atomic.Pointer snapshot and a sync.RWMutex, in that
// order.
func Bench(ctx context.Context, cfg BenchConfig, log logrus.FieldLogger) ([]Result, error) {
	if cfg.Readers < 1 {
		return nil, fmt.Errorf("%w: need at least one reader, got %d", ErrInvalidConfig, cfg.Readers)
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive, got %v", ErrInvalidConfig, cfg.Duration)
	}

	cases := []struct {
		name string
		snap snapshot
	}{
		{"leftright", new(leftrightSnapshot)},
		{"rcu", new(rcuSnapshot)},
		{"rwmutex", new(rwmutexSnapshot)},
	}

	results := make([]Result, 0, len(cases))
	for _, c := range cases {
		res, err := benchOne(ctx, cfg, c.snap)
		if err != nil {
			return results, fmt.Errorf("%s: %w", c.name, err)
		}
		res.Name = c.name
		log.WithFields(logrus.Fields{
			"name":          res.Name,
			"reads":         res.Reads,
			"writes":        res.Writes,
			"reads_per_sec": res.ReadsPerSecond(),
		}).Debug("bench case done")
		results = append(results, res)
	}
	return results, nil
}

func benchOne(ctx context.Context, cfg BenchConfig, snap snapshot) (Result, error) {
	var reads, writes atomic.Uint64

	// the first write happens before the clock starts, so no case can report
	// read throughput for a writer that never got scheduled.
	snap.write(1)
	writes.Add(1)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()
	start := time.Now()

	var g errgroup.Group
	g.Go(func() error {
		for n := uint64(2); ; n++ {
			if cfg.Interval > 0 {
				select {
				case <-runCtx.Done():
				case <-time.After(cfg.Interval):
				}
			}
			if runCtx.Err() != nil {
				return nil
			}
			snap.write(n)
			writes.Add(1)
		}
	})
	for i := 0; i < cfg.Readers; i++ {
		g.Go(func() error {
			var local, last uint64
			for {
				// checking the context on every read would dominate the
				// measurement.
				for j := 0; j < 256; j++ {
					n := snap.read()
					if n < last {
						return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, n, last)
					}
					last = n
				}
				local += 256
				if runCtx.Err() != nil {
					reads.Add(local)
					return nil
				}
			}
		})
	}
	err := g.Wait()

	res := Result{
		Reads:   reads.Load(),
		Writes:  writes.Load(),
		Elapsed: time.Since(start),
	}
	if err != nil {
		return res, err
	}
	// the deadline expiring is how every case ends, so only the caller
	// canceling is an error.
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

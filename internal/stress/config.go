package stress

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrInvalidConfig is wrapped by every error returned from Config.Validate.
var ErrInvalidConfig = errors.New("invalid stress config")

// Config describes a torture run.
type Config struct {
	// Readers is the number of concurrent reading goroutines.
	Readers int `toml:"readers"`
	// Writers is the number of writing goroutines. With more than one, writes
	// go through a leftright.Shared.
	Writers int `toml:"writers"`
	// Writes is the number of increments each writer performs.
	Writes int `toml:"writes"`
	// Reads is the number of accepted reads each reader performs.
	Reads int `toml:"reads"`
	// MaxAttempts bounds the attempts a single read may take. Zero means no
	// bound.
	MaxAttempts int `toml:"max_attempts"`
	// Jitter is the upper bound of a random pause between writes.
	Jitter Duration `toml:"jitter"`
	// Seed seeds the writers' jitter. Runs with the same seed and jitter
	// bound pause the same way.
	Seed uint64 `toml:"seed"`
}

// Duration lets toml files spell durations like "50us".
type Duration struct {
	time.Duration
}

// UnmarshalText parses text with time.ParseDuration.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats d the way time.Duration.String does.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig is one writer doing 1000 increments against four readers
// doing 10000 reads each.
func DefaultConfig() Config {
	return Config{
		Readers: 4,
		Writers: 1,
		Writes:  1000,
		Reads:   10000,
		Seed:    1,
	}
}

// LoadConfig reads a toml file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %q", ErrInvalidConfig, undecoded[0].String(), path)
	}
	return c, c.Validate()
}

// Validate checks that the config describes a run that can happen.
func (c Config) Validate() error {
	switch {
	case c.Readers < 0:
		return fmt.Errorf("%w: readers must not be negative, got %d", ErrInvalidConfig, c.Readers)
	case c.Writers < 1:
		return fmt.Errorf("%w: need at least one writer, got %d", ErrInvalidConfig, c.Writers)
	case c.Writes < 0:
		return fmt.Errorf("%w: writes must not be negative, got %d", ErrInvalidConfig, c.Writes)
	case c.Reads < 0:
		return fmt.Errorf("%w: reads must not be negative, got %d", ErrInvalidConfig, c.Reads)
	case c.MaxAttempts < 0:
		return fmt.Errorf("%w: max_attempts must not be negative, got %d", ErrInvalidConfig, c.MaxAttempts)
	case c.Jitter.Duration < 0:
		return fmt.Errorf("%w: jitter must not be negative, got %v", ErrInvalidConfig, c.Jitter.Duration)
	}
	return nil
}

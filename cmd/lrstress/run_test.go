package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/assert"
	"github.com/zeebo/leftright/internal/stress"
)

func buildRun(t *testing.T, args ...string) (stress.Config, error) {
	t.Helper()
	r := new(Run)
	f := flag.NewFlagSet("run", flag.ContinueOnError)
	r.SetFlags(f)
	assert.NoError(t, f.Parse(args))
	return r.buildConfig(f)
}

func TestRunDefaults(t *testing.T) {
	cfg, err := buildRun(t)
	assert.NoError(t, err)
	assert.Equal(t, cfg, stress.DefaultConfig())
}

func TestRunOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	assert.NoError(t, os.WriteFile(path, []byte("readers = 2\nwrites = 10\n"), 0o644))

	cfg, err := buildRun(t, "-config", path, "-writes", "20", "-max-attempts", "0", "-jitter", "5us", "-seed", "9")
	assert.NoError(t, err)

	want := stress.DefaultConfig()
	want.Readers = 2
	want.Writes = 20
	want.Jitter = stress.Duration{Duration: 5 * time.Microsecond}
	want.Seed = 9
	assert.Equal(t, cfg, want)
}

func TestRunInvalidOverride(t *testing.T) {
	_, err := buildRun(t, "-writers", "0")
	assert.Error(t, err)
}

func TestRunNegativeJitterGiven(t *testing.T) {
	// a negative jitter that was actually passed must reach validation.
	_, err := buildRun(t, "-jitter=-1ns")
	assert.Error(t, err)
}

func TestRunFlagDefaultsDoNotOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	assert.NoError(t, os.WriteFile(path, []byte("readers = 3\njitter = \"7us\"\n"), 0o644))

	cfg, err := buildRun(t, "-config", path)
	assert.NoError(t, err)
	assert.Equal(t, cfg.Readers, 3)
	assert.Equal(t, cfg.Jitter.Duration, 7*time.Microsecond)
}

func TestNewLogger(t *testing.T) {
	log, err := newLogger(true, "json")
	assert.NoError(t, err)
	assert.Equal(t, log.GetLevel(), logrus.DebugLevel)

	log, err = newLogger(false, "text")
	assert.NoError(t, err)
	assert.Equal(t, log.GetLevel(), logrus.InfoLevel)

	_, err = newLogger(false, "xml")
	assert.Error(t, err)
}

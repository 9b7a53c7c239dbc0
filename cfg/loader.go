package cfg

import (
	"os"
	"sync"
)

var (
	loader     Loader
	loaderOnce sync.Once
)

// Loader produces a fully populated Config. ViperLoader reads one from
// disk and watches it for changes; MockLoader returns a fixed
// in-memory Config for tests and config-free local runs.
type Loader interface {
	Load() (*Config, error)
}

// NewLoader pins the process to a single Loader implementation for its
// lifetime — later calls return whichever Loader won the race to call
// this first, regardless of what's passed, mirroring the same
// once-only semantics ViperLoader already uses for its own
// package-level Config singleton.
func NewLoader(l Loader) (Loader, error) {
	loaderOnce.Do(func() {
		loader = l
	})
	return loader, nil
}

// configSourceEnvVar selects MockLoader over the default ViperLoader,
// for a local run or CI smoke test that shouldn't need a yaml file on
// disk.
const configSourceEnvVar = "GHCOLLECTOR_CONFIG_SOURCE"

// Resolve picks a Loader from configSourceEnvVar and pins it via
// NewLoader, so a command that doesn't need ViperLoader's watch/reload
// hooks (cmd/enqueue) can get a Config without committing to a
// concrete loader type at the call site.
func Resolve() (Loader, error) {
	if os.Getenv(configSourceEnvVar) == "mock" {
		l, err := NewMockLoader()
		if err != nil {
			return nil, err
		}
		return NewLoader(l)
	}
	l, err := NewViperLoader()
	if err != nil {
		return nil, err
	}
	return NewLoader(l)
}

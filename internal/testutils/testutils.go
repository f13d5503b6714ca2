// Package testutils provides shared helpers for magicagent tests.
package testutils

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"magicagent/internal/config"
)

var (
	idCounter uint64
	idMutex   sync.Mutex

	timeCounter int64
	timeMutex   sync.Mutex
)

// NewTestConfig returns a configuration rooted in a per-test temporary
// directory, with a short save interval so throttling behavior can be
// exercised without long sleeps.
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	root := t.TempDir()
	cfg.Agent.DataDir = filepath.Join(root, "agents")
	cfg.Agent.SessionsDir = filepath.Join(root, "sessions")
	cfg.Agent.SaveInterval = 50 * time.Millisecond
	cfg.LLM.Provider = "mock"
	return cfg
}

// DeterministicID generates sequential UUID-shaped identifiers so test
// output stays stable across runs.
func DeterministicID() string {
	idMutex.Lock()
	defer idMutex.Unlock()

	idCounter++
	return fmt.Sprintf("%08x-0000-4000-8000-%012x", idCounter, idCounter)
}

// DeterministicTime returns incrementing timestamps starting from
// 2025-01-01T00:00:00Z, one second apart, for stable ordering in tests.
func DeterministicTime() time.Time {
	timeMutex.Lock()
	defer timeMutex.Unlock()

	timeCounter++
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(timeCounter) * time.Second)
}

// ResetCounters resets the deterministic generators between test runs.
func ResetCounters() {
	idMutex.Lock()
	timeMutex.Lock()
	defer idMutex.Unlock()
	defer timeMutex.Unlock()

	idCounter = 0
	timeCounter = 0
}

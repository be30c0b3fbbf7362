// Package e2e implements utilities for large end to end tests.
package e2e

import (
	"os"
	"strconv"
	"testing"
)

// Env variable for E2E tests.
const Env = "PGZ_E2E"

type Status byte

const (
	NotSet   Status = iota // N/A
	Enabled                // explicitly enabled
	Disabled               // explicitly disabled
)

// Get reports current end-to-end status.
func Get(tb testing.TB) Status {
	tb.Helper()
	s, ok := os.LookupEnv(Env)
	if !ok || s == "" {
		return NotSet
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		tb.Fatalf("E2E: %s=%s is invalid: %v", Env, s, err)
	}
	if v {
		return Enabled
	}
	return Disabled
}

// Skip skips tb unless end to end tests are explicitly enabled.
func Skip(tb testing.TB) {
	tb.Helper()
	if Get(tb) != Enabled {
		tb.Skipf("Skipped: set %s=1 to run", Env)
	}
}

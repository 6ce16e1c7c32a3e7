package testutil

import (
	"gopkg.in/check.v1"
)

// BaseTest is embedded by suites that want automatic cleanup-stack support.
type BaseTest struct {
	cleanups []func()
}

// SetUpTest resets the cleanup stack. Suites overriding SetUpTest must call
// this explicitly.
func (b *BaseTest) SetUpTest(c *check.C) {
	b.cleanups = nil
}

// TearDownTest runs every registered cleanup in LIFO order. Suites
// overriding TearDownTest must call this explicitly.
func (b *BaseTest) TearDownTest(c *check.C) {
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		b.cleanups[i]()
	}
	b.cleanups = nil
}

// AddCleanup registers f to run at TearDownTest.
func (b *BaseTest) AddCleanup(f func()) {
	b.cleanups = append(b.cleanups, f)
}

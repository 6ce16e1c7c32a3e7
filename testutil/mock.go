// Package testutil holds the small whitebox-testing helpers every package's
// export_test.go leans on: swapping package-level function variables for the
// duration of a test, and a base test suite that tracks cleanups.
package testutil

import "reflect"

// Mock replaces *target with val and returns a function that restores the
// original value. target must be a pointer to a variable of the same type
// as val, e.g.:
//
//	var doThing = func() error { ... }
//	func MockDoThing(f func() error) (restore func()) {
//		return testutil.Mock(&doThing, f)
//	}
func Mock(target, val interface{}) (restore func()) {
	tv := reflect.ValueOf(target).Elem()
	old := reflect.New(tv.Type()).Elem()
	old.Set(tv)
	tv.Set(reflect.ValueOf(val))
	return func() {
		tv.Set(old)
	}
}

package testing_assert

import (
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
)

// Assert fails the test if the condition is false.
func Assert(tb testing.TB, condition bool, msg string, v ...interface{}) {
	if !condition {
		_, file, line, _ := runtime.Caller(1)
		fmt.Printf("%s:%d: "+msg+"\n", append([]interface{}{filepath.Base(file), line}, v...)...)
		tb.FailNow()
	}
}

// Ok fails the test if ok is false.
func Ok(tb testing.TB, ok bool) {
	if !ok {
		_, file, line, _ := runtime.Caller(1)
		fmt.Printf("%s:%d: unexpected failure\n", filepath.Base(file), line)
		tb.FailNow()
	}
}

// Nok fails the test if ok is true.
func Nok(tb testing.TB, ok bool) {
	if ok {
		_, file, line, _ := runtime.Caller(1)
		fmt.Printf("%s:%d: unexpected success\n", filepath.Base(file), line)
		tb.FailNow()
	}
}

// Equals fails the test if exp is not equal to act.
func Equals(tb testing.TB, exp, act interface{}) {
	if !reflect.DeepEqual(exp, act) {
		_, file, line, _ := runtime.Caller(1)
		fmt.Printf("%s:%d:\n\texp: %#v\n\tgot: %#v\n", filepath.Base(file), line, exp, act)
		tb.FailNow()
	}
}

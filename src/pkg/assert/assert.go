package assert

import "fmt"

// Assert panics when cond is false. It is reserved for contract violations
// that indicate a bug in the caller, never for recoverable conditions.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// NoError panics when err is non-nil.
func NoError(err error, format string, args ...any) {
	if err != nil {
		panic(fmt.Sprintf(format, args...) + ": " + err.Error())
	}
}

package utils

import "fmt"

// RecoverWithError turns a panic in the deferring function into its error
// result. Error panic values stay reachable through errors.Is.
func RecoverWithError(err *error) {
	rv := recover()
	if rv == nil {
		return
	}
	if panicErr, ok := rv.(error); ok {
		*err = fmt.Errorf("got panic: %w", panicErr)
		return
	}
	*err = fmt.Errorf("got panic: %v", rv)
}

package logger

import "os"

// exit is swapped in tests.
var exit = func(code int) {
	_ = Close()
	os.Exit(code)
}

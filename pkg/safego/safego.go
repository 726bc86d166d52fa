package safego

import (
	"go.uber.org/zap"
)

// Go launches a goroutine with panic recovery.
// If the goroutine panics, the panic value is logged and the goroutine exits
// cleanly instead of crashing the process.
//
// Usage:
//
//	safego.Go(logger, "session-reaper", func() {
//	    // work that might panic
//	})
func Go(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover logs a panic and swallows it. Meant to be deferred at the top of
// code that must not crash the caller, e.g. request handlers that promise
// a response no matter what.
func Recover(logger *zap.Logger, name string) {
	if r := recover(); r != nil {
		logger.Error("Recovered from panic",
			zap.String("scope", name),
			zap.Any("panic", r),
			zap.Stack("stack"),
		)
	}
}

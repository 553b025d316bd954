package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with the panic value, full
// stack trace, and a short description of where it happened. Call it in a
// defer statement. The panic is not re-raised; the goroutine returns normally.
//
//	defer observability.RecoverPanic(logger, "last-used update")
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", where).
			Error("PANIC recovered")
	}
}

// RecoverPanicWithCallback recovers from a panic, logs it, and then runs the
// callback whether or not a panic occurred. Use it when a detached goroutine
// must close a channel or release a resource on every exit path.
func RecoverPanicWithCallback(logger *Logger, where string, callback func()) {
	defer callback()
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", where).
			Error("PANIC recovered")
	}
}

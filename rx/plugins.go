package rx

import (
	"sync"

	"go.uber.org/zap"
)

// ErrorHandler receives errors that cannot be delivered to any consumer.
type ErrorHandler func(err error)

var (
	handlerMu sync.RWMutex
	handler   ErrorHandler
)

// SetErrorHandler installs h as the process-wide undeliverable-error sink and
// returns a function restoring the previously installed one. A nil h restores
// the default, which logs through zap.L().
//
//	restore := rx.SetErrorHandler(collector.Handle)
//	defer restore()
func SetErrorHandler(h ErrorHandler) (restore func()) {
	handlerMu.Lock()
	prev := handler
	handler = h
	handlerMu.Unlock()
	return func() {
		handlerMu.Lock()
		handler = prev
		handlerMu.Unlock()
	}
}

// OnError reports err to the installed sink. It never panics: a panicking
// handler is logged and otherwise ignored.
func OnError(err error) {
	if err == nil {
		return
	}
	handlerMu.RLock()
	h := handler
	handlerMu.RUnlock()
	if h == nil {
		zap.L().Error("undeliverable error", zap.Error(err))
		return
	}
	if perr := Catch(func() { h(err) }); perr != nil {
		zap.L().Error("error handler panicked",
			zap.Error(err),
			zap.NamedError("handler_error", perr))
	}
}

// ErrorCollector is an ErrorHandler target that keeps every report. Reports
// racing from independent subscriptions are appended, never replaced.
type ErrorCollector struct {
	mu   sync.Mutex
	errs []error
}

func (c *ErrorCollector) Handle(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

// Errors returns the reports received so far, oldest first.
func (c *ErrorCollector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

package action

import (
	"context"
	"fmt"
	"time"

	"github.com/wmsflow/rulebus/logger"
	"go.uber.org/zap"
)

// Result is the per-action outcome. Failures are recorded, never
// propagated: one failing action does not roll back or suppress its
// siblings.
type Result struct {
	Type string
	Ok   bool
	Err  error
}

// Executor dispatches action specs through the registry with a bounded
// wall-clock budget per action. A handler that overruns its budget is
// abandoned and recorded as a timeout; it must not hold engine locks.
type Executor struct {
	registry *Registry
	timeout  time.Duration
}

func NewExecutor(registry *Registry, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Executor{registry: registry, timeout: timeout}
}

func (e *Executor) Registry() *Registry {
	return e.registry
}

func (e *Executor) Run(actionType string, params map[string]any, ec *ExecutionContext) Result {
	handler, err := e.registry.Get(actionType)
	if err != nil {
		return Result{Type: actionType, Ok: false, Err: err}
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("action handler panic: %v", r)
			}
		}()
		done <- handler.Execute(ctx, params, ec)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("action failed",
				zap.String("action", actionType),
				zap.String("eventId", ec.Event.Id),
				zap.Error(err))
			return Result{Type: actionType, Ok: false, Err: err}
		}
		return Result{Type: actionType, Ok: true}
	case <-ctx.Done():
		logger.Error("action timed out",
			zap.String("action", actionType),
			zap.String("eventId", ec.Event.Id),
			zap.Duration("timeout", e.timeout))
		return Result{Type: actionType, Ok: false, Err: fmt.Errorf("action %s timed out after %s", actionType, e.timeout)}
	}
}

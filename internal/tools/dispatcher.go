package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"qoze/internal/logging"
	"qoze/internal/types"
)

// Dispatcher executes the tool calls of one turn under the declared
// concurrency classes. Consecutive parallel-class (read-only) calls run
// concurrently, bounded by MaxParallel; serial calls run one at a time.
// Results are always returned in call-emission order, regardless of
// completion order. A failure is never raised: every call yields a
// ToolResult the orchestrator feeds back as an observation.
type Dispatcher struct {
	registry       *Registry
	defaultTimeout time.Duration
	maxParallel    int
	cancelGrace    time.Duration
}

// DispatcherConfig holds dispatcher limits.
type DispatcherConfig struct {
	// DefaultTimeout applies to tools that do not set their own.
	DefaultTimeout time.Duration

	// MaxParallel bounds concurrent read-only executions in a turn.
	MaxParallel int

	// CancelGrace is how long a timed-out or cancelled call may keep
	// running to return partial output before it is abandoned.
	CancelGrace time.Duration
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		DefaultTimeout: 5 * time.Minute,
		MaxParallel:    4,
		CancelGrace:    2 * time.Second,
	}
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, cfg DispatcherConfig) *Dispatcher {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultDispatcherConfig().DefaultTimeout
	}
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = DefaultDispatcherConfig().CancelGrace
	}
	return &Dispatcher{
		registry:       registry,
		defaultTimeout: cfg.DefaultTimeout,
		maxParallel:    cfg.MaxParallel,
		cancelGrace:    cfg.CancelGrace,
	}
}

// Dispatch executes all calls of a turn and returns one result per
// call, index-aligned with the input slice.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *types.SessionContext, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))

	i := 0
	for i < len(calls) {
		if d.classOf(calls[i]) == ConcurrencySerial {
			results[i] = d.executeOne(ctx, sess, calls[i])
			i++
			continue
		}

		// Batch the maximal run of consecutive parallel-class calls.
		// A mutating call ends the batch: reads never overlap a
		// pending write in the same session.
		j := i + 1
		for j < len(calls) && d.classOf(calls[j]) == ConcurrencyParallel {
			j++
		}

		var g errgroup.Group
		g.SetLimit(d.maxParallel)
		for k := i; k < j; k++ {
			k := k
			g.Go(func() error {
				results[k] = d.executeOne(ctx, sess, calls[k])
				return nil
			})
		}
		_ = g.Wait()
		i = j
	}

	return results
}

// classOf returns the scheduling class for a call. Unknown tools are
// treated as serial; they fail fast in executeOne anyway.
func (d *Dispatcher) classOf(call types.ToolCall) ConcurrencyClass {
	tool := d.registry.Get(call.Name)
	if tool == nil {
		return ConcurrencySerial
	}
	return tool.Concurrency
}

// executeOne validates and runs a single call, mapping every failure
// mode to a result status. The per-call timeout produces a Timeout
// result rather than blocking the turn indefinitely.
func (d *Dispatcher) executeOne(ctx context.Context, sess *types.SessionContext, call types.ToolCall) types.ToolResult {
	start := time.Now()

	result := types.ToolResult{CallID: call.ID, ToolName: call.Name}

	tool := d.registry.Get(call.Name)
	if tool == nil {
		result.Status = types.StatusError
		result.Payload = fmt.Sprintf("tool validation error: %v: %s", ErrToolNotFound, call.Name)
		result.ElapsedMs = time.Since(start).Milliseconds()
		return result
	}

	if err := validateArgs(tool, call.Args); err != nil {
		logging.ToolsDebug("Validation failed for %s: %v", call.Name, err)
		result.Status = types.StatusError
		result.Payload = fmt.Sprintf("tool validation error: %v", err)
		result.ElapsedMs = time.Since(start).Milliseconds()
		return result
	}

	timeout := tool.Timeout
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logging.ToolsDebug("Executing tool: %s (call=%s)", call.Name, call.ID)

	type outcome struct {
		payload string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		payload, err := tool.Execute(execCtx, sess, call.Args)
		done <- outcome{payload, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-execCtx.Done():
		// Give the tool a moment to observe cancellation and
		// return partial output before abandoning it.
		select {
		case out = <-done:
		case <-time.After(d.cancelGrace):
			out = outcome{err: execCtx.Err()}
		}
	}

	elapsed := time.Since(start)
	result.ElapsedMs = elapsed.Milliseconds()
	result.Payload = out.payload

	switch {
	case out.err == nil:
		result.Status = types.StatusOk
	case errors.Is(out.err, ErrPermissionDenied):
		result.Status = types.StatusPermissionDenied
		result.Payload = out.err.Error()
	case errors.Is(out.err, context.DeadlineExceeded):
		result.Status = types.StatusTimeout
		result.Payload = fmt.Sprintf("tool timed out after %v", timeout)
	default:
		result.Status = types.StatusError
		if result.Payload != "" {
			result.Payload = fmt.Sprintf("%v\nOutput:\n%s", out.err, result.Payload)
		} else {
			result.Payload = out.err.Error()
		}
	}

	logging.Tools("Tool %s completed in %v (status=%s)", call.Name, elapsed, result.Status)
	return result
}

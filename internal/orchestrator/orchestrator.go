// Package orchestrator drives the reasoning loop for one session: it
// builds prompts, streams model responses, dispatches tool calls and
// feeds observations back until a terminal condition.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	agentcontext "qoze/internal/context"
	"qoze/internal/gateway"
	"qoze/internal/logging"
	"qoze/internal/tools"
	"qoze/internal/types"
)

// State is the loop's current phase.
type State string

const (
	StateIdle         State = "idle"
	StateReasoning    State = "reasoning"
	StateToolDispatch State = "tool_dispatch"
	StateObserving    State = "observing"
	StateDone         State = "done"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// Terminal reports whether the loop has stopped advancing.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// Config bounds one session's loop.
type Config struct {
	// StepCeiling forces Failed(StepLimitExceeded) after this many
	// turns, guaranteeing termination.
	StepCeiling int

	// MaxToolCallsPerTurn caps how many calls from one model response
	// are dispatched; the rest are reported back as an observation.
	MaxToolCallsPerTurn int

	// MaxTokens and Temperature are passed through to the gateway.
	MaxTokens   int
	Temperature float64
}

// Orchestrator runs the loop for exactly one session. Not reusable;
// create a new one per session.
type Orchestrator struct {
	gw         *gateway.Gateway
	ctxMgr     *agentcontext.Manager
	dispatcher *tools.Dispatcher
	registry   *tools.Registry
	sess       *types.SessionContext
	cfg        Config

	events chan StepEvent

	mu    sync.Mutex
	state State
	turns []types.Turn
	usage types.Usage
}

// New wires an orchestrator for one session.
func New(gw *gateway.Gateway, ctxMgr *agentcontext.Manager, dispatcher *tools.Dispatcher, registry *tools.Registry, sess *types.SessionContext, cfg Config) *Orchestrator {
	if cfg.StepCeiling <= 0 {
		cfg.StepCeiling = 40
	}
	if cfg.MaxToolCallsPerTurn <= 0 {
		cfg.MaxToolCallsPerTurn = 16
	}
	return &Orchestrator{
		gw:         gw,
		ctxMgr:     ctxMgr,
		dispatcher: dispatcher,
		registry:   registry,
		sess:       sess,
		cfg:        cfg,
		events:     make(chan StepEvent, eventBufferSize),
		state:      StateIdle,
	}
}

// Events returns the ordered step-event stream. Closed when the loop
// reaches a terminal state.
func (o *Orchestrator) Events() <-chan StepEvent {
	return o.events
}

// State returns the current loop phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Turns returns the committed turn history.
func (o *Orchestrator) Turns() []types.Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]types.Turn, len(o.turns))
	copy(out, o.turns)
	return out
}

// Usage returns the accumulated token accounting.
func (o *Orchestrator) Usage() types.Usage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.usage
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) emit(ev StepEvent) {
	select {
	case o.events <- ev:
	default:
		// A full buffer means the consumer is gone or badly stalled;
		// dropping a delta beats deadlocking the loop.
		logging.Orchestrator("event buffer full, dropping %s", ev.Type)
	}
}

// Run executes the loop for the given goal until a terminal state.
// Returns nil for Done and Cancelled; an error only for Failed.
func (o *Orchestrator) Run(ctx context.Context, goal string) error {
	defer close(o.events)

	o.ctxMgr.Append(types.Message{Role: types.RoleUser, Content: goal})
	logging.Orchestrator("session %s: goal %q", o.sess.SessionID, goal)

	for step := 1; ; step++ {
		if err := ctx.Err(); err != nil {
			return o.cancel()
		}
		if step > o.cfg.StepCeiling {
			return o.fail(ReasonStepLimitExceeded,
				fmt.Errorf("step ceiling of %d turns exceeded", o.cfg.StepCeiling))
		}

		turnSeq := o.ctxMgr.NextTurn()
		started := time.Now()
		o.emit(StepEvent{Type: EventTurnStarted, Turn: turnSeq})

		o.setState(StateReasoning)
		turn, err := o.reason(ctx, turnSeq)
		if err != nil {
			if ctx.Err() != nil {
				return o.cancel()
			}
			return o.fail(classifyReason(err), err)
		}

		if len(turn.ToolCalls) == 0 {
			turn.Terminal = true
			o.commit(turn, started)
			o.emit(StepEvent{Type: EventTurnCompleted, Turn: turnSeq, Usage: &turn.Usage})
			o.setState(StateDone)
			o.emit(StepEvent{Type: EventSessionDone, Turn: turnSeq, Text: turn.Response})
			logging.Orchestrator("session %s: done after %d turns", o.sess.SessionID, turnSeq)
			return nil
		}

		o.setState(StateToolDispatch)
		results, dispatched := o.dispatch(ctx, turn.ToolCalls)
		if ctx.Err() != nil {
			return o.cancel()
		}

		o.setState(StateObserving)
		o.observe(dispatched, results, len(turn.ToolCalls))

		o.commit(turn, started)
		o.emit(StepEvent{Type: EventTurnCompleted, Turn: turnSeq, Usage: &turn.Usage})
	}
}

// reason streams one model response and appends the assistant message.
func (o *Orchestrator) reason(ctx context.Context, turnSeq int) (types.Turn, error) {
	prefix, msgs, err := o.ctxMgr.BuildPrompt(ctx)
	if err != nil {
		return types.Turn{}, fmt.Errorf("%s: %w", ReasonContextBudget, err)
	}

	req := &gateway.Request{
		System:      prefix,
		Messages:    msgs,
		Tools:       o.registry.Definitions(),
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	}

	var text strings.Builder
	var calls []types.ToolCall
	var usage types.Usage

	for ev := range o.gw.Send(ctx, req) {
		switch ev.Type {
		case gateway.EventTextDelta:
			text.WriteString(ev.TextDelta)
			o.emit(StepEvent{Type: EventTokenDelta, Turn: turnSeq, Text: ev.TextDelta})
		case gateway.EventToolCall:
			call := *ev.ToolCall
			call.TurnSeq = turnSeq
			calls = append(calls, call)
			o.emit(StepEvent{Type: EventToolCallDetected, Turn: turnSeq, ToolCall: &call})
		case gateway.EventUsage:
			usage.Add(*ev.Usage)
		case gateway.EventError:
			return types.Turn{}, ev.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return types.Turn{}, err
	}

	response := strings.TrimSpace(text.String())
	o.ctxMgr.Append(types.Message{
		Role:      types.RoleAssistant,
		Content:   response,
		ToolCalls: calls,
	})

	o.mu.Lock()
	o.usage.Add(usage)
	o.mu.Unlock()

	return types.Turn{
		Seq:       turnSeq,
		Response:  response,
		ToolCalls: calls,
		Usage:     usage,
	}, nil
}

// dispatch executes up to MaxToolCallsPerTurn calls and returns the
// results in emission order alongside the calls actually dispatched.
func (o *Orchestrator) dispatch(ctx context.Context, calls []types.ToolCall) ([]types.ToolResult, []types.ToolCall) {
	if len(calls) > o.cfg.MaxToolCallsPerTurn {
		logging.Orchestrator("turn requested %d tool calls, capping at %d",
			len(calls), o.cfg.MaxToolCallsPerTurn)
		calls = calls[:o.cfg.MaxToolCallsPerTurn]
	}

	for i := range calls {
		o.emit(StepEvent{Type: EventToolStarted, Turn: calls[i].TurnSeq, ToolCall: &calls[i]})
	}

	results := o.dispatcher.Dispatch(ctx, o.sess, calls)
	return results, calls
}

// observe appends each result as a tool-role message in emission
// order and reports any calls dropped by the per-turn cap.
func (o *Orchestrator) observe(calls []types.ToolCall, results []types.ToolResult, requested int) {
	for i := range results {
		res := results[i]
		o.emit(StepEvent{Type: EventToolCompleted, Turn: calls[i].TurnSeq, ToolResult: &res})

		content := res.Payload
		if !res.IsSuccess() {
			content = fmt.Sprintf("[%s] %s", res.Status, res.Payload)
		}
		o.ctxMgr.Append(types.Message{
			Role:       types.RoleTool,
			Content:    content,
			ToolCallID: res.CallID,
		})
	}

	if requested > len(calls) {
		o.ctxMgr.Append(types.Message{
			Role: types.RoleTool,
			Content: fmt.Sprintf("[error] %d additional tool calls were not executed: at most %d per turn",
				requested-len(calls), o.cfg.MaxToolCallsPerTurn),
		})
	}
}

func (o *Orchestrator) commit(turn types.Turn, started time.Time) {
	turn.Started = started
	turn.Elapsed = time.Since(started).Milliseconds()
	o.mu.Lock()
	o.turns = append(o.turns, turn)
	o.mu.Unlock()
}

func (o *Orchestrator) cancel() error {
	o.setState(StateCancelled)
	o.emit(StepEvent{Type: EventSessionCancelled})
	logging.Orchestrator("session %s: cancelled", o.sess.SessionID)
	return nil
}

func (o *Orchestrator) fail(reason string, err error) error {
	o.setState(StateFailed)
	o.emit(StepEvent{Type: EventSessionFailed, Reason: reason})
	logging.Orchestrator("session %s: failed (%s): %v", o.sess.SessionID, reason, err)
	return fmt.Errorf("%s: %w", reason, err)
}

// classifyReason maps gateway errors onto terminal failure reasons.
func classifyReason(err error) string {
	switch {
	case errors.Is(err, gateway.ErrAuth), errors.Is(err, gateway.ErrNoAPIKey):
		return ReasonAuthError
	case strings.HasPrefix(err.Error(), ReasonContextBudget):
		return ReasonContextBudget
	default:
		return ReasonProviderError
	}
}

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"qoze/internal/config"
	"qoze/internal/gateway"
	"qoze/internal/orchestrator"
	"qoze/internal/skills"
	"qoze/internal/tools"
	"qoze/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedProvider plays back one event sequence per model call.
type scriptedProvider struct {
	mu      sync.Mutex
	scripts [][]gateway.StreamEvent
	calls   int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(ctx context.Context, req *gateway.Request) (<-chan gateway.StreamEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.calls
	if idx >= len(p.scripts) {
		idx = len(p.scripts) - 1
	}
	p.calls++

	script := p.scripts[idx]
	out := make(chan gateway.StreamEvent, len(script)+1)
	for _, ev := range script {
		out <- ev
	}
	out <- gateway.StreamEvent{Type: gateway.EventDone}
	close(out)
	return out, nil
}

func newTestSupervisor(t *testing.T, provider *scriptedProvider, register func(*tools.Registry)) *Supervisor {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cfg := config.Default()
	registry := tools.NewRegistry()
	if register != nil {
		register(registry)
	}
	gw := gateway.New(provider, gateway.Options{MaxRetries: 1, BackoffBase: time.Millisecond})
	dispatcher := tools.NewDispatcher(registry, tools.DispatcherConfig{DefaultTimeout: 5 * time.Second, MaxParallel: 4})
	loader := skills.NewLoader(cfg.Skills)
	return NewSupervisor(cfg, gw, registry, dispatcher, loader, nil)
}

func TestSessionLifecycle(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]gateway.StreamEvent{
		{
			{Type: gateway.EventTextDelta, TextDelta: "all done"},
			{Type: gateway.EventUsage, Usage: &types.Usage{InputTokens: 5, OutputTokens: 2}},
		},
	}}
	sup := newTestSupervisor(t, provider, nil)
	defer sup.Close()

	sess, err := sup.Create(t.TempDir())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sess.Status() != types.SessionActive {
		t.Errorf("new session status = %s, want active", sess.Status())
	}

	events, err := sup.Submit(context.Background(), sess.ID, "say done")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	var final orchestrator.StepEvent
	for ev := range events {
		final = ev
	}
	if final.Type != orchestrator.EventSessionDone {
		t.Errorf("final event = %s, want session_done", final.Type)
	}

	waitStatus(t, sess, types.SessionCompleted)
}

func TestSubmitUnknownSession(t *testing.T) {
	sup := newTestSupervisor(t, &scriptedProvider{scripts: [][]gateway.StreamEvent{{}}}, nil)
	defer sup.Close()

	if _, err := sup.Submit(context.Background(), "nope", "goal"); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestSubmitTwiceRejected(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]gateway.StreamEvent{
		{{Type: gateway.EventTextDelta, TextDelta: "ok"}},
	}}
	sup := newTestSupervisor(t, provider, nil)
	defer sup.Close()

	sess, err := sup.Create(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	events, err := sup.Submit(context.Background(), sess.ID, "first")
	if err != nil {
		t.Fatal(err)
	}
	for range events {
	}
	waitStatus(t, sess, types.SessionCompleted)

	if _, err := sup.Submit(context.Background(), sess.ID, "second"); err == nil {
		t.Error("terminal session must not accept another goal")
	}
}

func TestCancelRunningSession(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]gateway.StreamEvent{
		{{Type: gateway.EventToolCall, ToolCall: &types.ToolCall{ID: "c1", Name: "slow", Args: map[string]any{}}}},
	}}
	sup := newTestSupervisor(t, provider, func(r *tools.Registry) {
		r.MustRegister(&tools.Tool{
			Name:        "slow",
			Description: "sleeps",
			Execute: func(ctx context.Context, sess *types.SessionContext, args map[string]any) (string, error) {
				select {
				case <-time.After(10 * time.Second):
					return "done", nil
				case <-ctx.Done():
					return "", ctx.Err()
				}
			},
		})
	})
	defer sup.Close()

	sess, err := sup.Create(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	events, err := sup.Submit(context.Background(), sess.ID, "run the slow tool")
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = sup.Cancel(sess.ID)
	}()

	sawCancelled := false
	for ev := range events {
		if ev.Type == orchestrator.EventSessionCancelled {
			sawCancelled = true
		}
	}
	if !sawCancelled {
		t.Error("missing SessionCancelled event")
	}
	waitStatus(t, sess, types.SessionCancelled)
}

func TestSkillsFixedAtCreation(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]gateway.StreamEvent{
		{{Type: gateway.EventTextDelta, TextDelta: "done"}},
	}}
	sup := newTestSupervisor(t, provider, nil)
	defer sup.Close()

	sess, err := sup.Create(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Skills) != 0 {
		t.Errorf("expected no skills in empty workdir, got %d", len(sess.Skills))
	}
}

// waitStatus polls until the session reaches the wanted terminal
// status; the status flips shortly after the event stream closes.
func waitStatus(t *testing.T, sess *Session, want types.SessionStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sess.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("session status = %s, want %s", sess.Status(), want)
}

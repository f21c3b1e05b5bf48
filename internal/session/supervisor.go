// Package session owns session lifecycle: creation, cancellation, the
// step-event stream handed to the UI and persistence of finished
// sessions.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"qoze/internal/config"
	agentcontext "qoze/internal/context"
	"qoze/internal/gateway"
	"qoze/internal/logging"
	"qoze/internal/orchestrator"
	"qoze/internal/skills"
	"qoze/internal/tools"
	"qoze/internal/types"
)

// Session is one supervised agent run. Owned exclusively by the
// supervisor; destroyed on Close or process exit.
type Session struct {
	ID        string
	WorkDir   string
	CreatedAt time.Time
	Skills    []types.Skill

	orch   *orchestrator.Orchestrator
	cancel context.CancelFunc

	mu      sync.Mutex
	status  types.SessionStatus
	running bool
}

// Status returns the session's lifecycle state.
func (s *Session) Status() types.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Supervisor creates and tracks sessions. Each session gets its own
// orchestrator and context manager; the gateway, registry and
// dispatcher are shared process-wide.
type Supervisor struct {
	cfg        *config.Config
	gw         *gateway.Gateway
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	loader     *skills.Loader
	store      *Store // nil disables persistence

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSupervisor wires a supervisor. store may be nil.
func NewSupervisor(cfg *config.Config, gw *gateway.Gateway, registry *tools.Registry, dispatcher *tools.Dispatcher, loader *skills.Loader, store *Store) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		gw:         gw,
		registry:   registry,
		dispatcher: dispatcher,
		loader:     loader,
		store:      store,
		sessions:   make(map[string]*Session),
	}
}

// Create resolves skills for workDir and builds a new idle session.
// The skill set is fixed here; later skill changes affect only future
// sessions.
func (s *Supervisor) Create(workDir string) (*Session, error) {
	resolved, err := s.loader.ResolveForSession(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve skills: %w", err)
	}

	id := uuid.NewString()
	sessCtx := &types.SessionContext{
		SessionID:   id,
		WorkDir:     workDir,
		SandboxRoot: s.cfg.Execution.SandboxRoot,
	}

	ctxMgr := agentcontext.NewManager(s.cfg.Context, buildPreamble(workDir), resolved, s.gw)
	orch := orchestrator.New(s.gw, ctxMgr, s.dispatcher, s.registry, sessCtx, orchestrator.Config{
		StepCeiling:         s.cfg.Execution.StepCeiling,
		MaxToolCallsPerTurn: s.cfg.Execution.MaxToolCallsPerTurn,
		MaxTokens:           s.cfg.LLM.MaxOutputTokens,
		Temperature:         s.cfg.LLM.Temperature,
	})

	sess := &Session{
		ID:        id,
		WorkDir:   workDir,
		CreatedAt: time.Now(),
		Skills:    resolved,
		orch:      orch,
		status:    types.SessionActive,
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	logging.Session("created %s: workdir=%s skills=%d prefix=%s",
		id, workDir, len(resolved), ctxMgr.PrefixFingerprint()[:12])
	return sess, nil
}

// Submit starts the loop for a goal and returns the session's ordered
// step-event stream. One goal per session; the stream closes when the
// session reaches a terminal state.
func (s *Supervisor) Submit(ctx context.Context, sessionID, goal string) (<-chan orchestrator.StepEvent, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.running || sess.status.Terminal() {
		sess.mu.Unlock()
		return nil, fmt.Errorf("session %s is not accepting goals", sessionID)
	}
	sess.running = true
	runCtx, cancel := context.WithCancel(ctx)
	sess.cancel = cancel
	sess.mu.Unlock()

	go func() {
		defer cancel()
		err := sess.orch.Run(runCtx, goal)

		sess.mu.Lock()
		switch sess.orch.State() {
		case orchestrator.StateDone:
			sess.status = types.SessionCompleted
		case orchestrator.StateCancelled:
			sess.status = types.SessionCancelled
		default:
			sess.status = types.SessionFailed
		}
		sess.running = false
		sess.mu.Unlock()

		if err != nil {
			logging.SessionError("session %s: %v", sessionID, err)
		}
		s.persist(sess)
	}()

	return sess.orch.Events(), nil
}

// Cancel interrupts a running session. In-flight gateway streams and
// tool subprocesses are aborted through the session context.
func (s *Supervisor) Cancel(sessionID string) error {
	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	cancel := sess.cancel
	sess.mu.Unlock()
	if cancel == nil {
		return fmt.Errorf("session %s has no running goal", sessionID)
	}
	logging.Session("cancelling %s", sessionID)
	cancel()
	return nil
}

// Get returns a tracked session.
func (s *Supervisor) Get(sessionID string) (*Session, error) {
	return s.get(sessionID)
}

// List returns all tracked sessions.
func (s *Supervisor) List() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Close cancels every running session.
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.mu.Lock()
		if sess.cancel != nil {
			sess.cancel()
		}
		sess.mu.Unlock()
	}
}

func (s *Supervisor) get(sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("unknown session %s", sessionID)
	}
	return sess, nil
}

// persist writes a terminal session to the store, if configured.
func (s *Supervisor) persist(sess *Session) {
	if s.store == nil {
		return
	}
	turns := sess.orch.Turns()

	finalAnswer := ""
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Terminal {
			finalAnswer = turns[i].Response
			break
		}
	}

	rec := Record{
		ID:          sess.ID,
		WorkDir:     sess.WorkDir,
		CreatedAt:   sess.CreatedAt,
		Status:      sess.Status(),
		TurnCount:   len(turns),
		Usage:       sess.orch.Usage(),
		FinalAnswer: finalAnswer,
	}
	if err := s.store.Save(rec, turns); err != nil {
		logging.SessionError("failed to persist session %s: %v", sess.ID, err)
	}
}

// Package context maintains the ordered conversation state for one
// session: prompt composition, the token budget and the stable system
// prefix that keeps provider-side prompt caching effective.
package context

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"qoze/internal/config"
	"qoze/internal/logging"
	"qoze/internal/types"
)

// Summarizer compresses conversation text into a compact synthetic
// message. The gateway implements it; tests substitute fakes.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// entry tags a message with the turn it belongs to so the recent-turn
// window can protect it from eviction.
type entry struct {
	msg  types.Message
	turn int
}

// Manager owns one session's message sequence. The system prompt and
// skill block are fixed at construction and emitted byte-identical on
// every prompt, so providers can reuse the cached prefix; everything
// after the prefix is subject to the budget.
type Manager struct {
	cfg        config.ContextConfig
	counter    *TokenCounter
	summarizer Summarizer

	prefix       string // system prompt + skill block, immutable
	prefixHash   string
	prefixTokens int

	mu      sync.Mutex
	entries []entry
	turn    int
}

// NewManager composes the immutable prefix from the system prompt and
// the session's resolved skills.
func NewManager(cfg config.ContextConfig, systemPrompt string, skills []types.Skill, summarizer Summarizer) *Manager {
	var b strings.Builder
	b.WriteString(systemPrompt)
	for _, skill := range skills {
		fmt.Fprintf(&b, "\n\n## Skill: %s\n%s", skill.Name, skill.Content)
	}
	prefix := b.String()

	sum := sha256.Sum256([]byte(prefix))
	counter := NewTokenCounter()

	return &Manager{
		cfg:          cfg,
		counter:      counter,
		summarizer:   summarizer,
		prefix:       prefix,
		prefixHash:   hex.EncodeToString(sum[:]),
		prefixTokens: counter.Count(prefix),
	}
}

// PrefixFingerprint identifies the cached prefix. Constant for the
// lifetime of the session; a different fingerprint means a different
// session (or skill set) and a cold provider cache.
func (m *Manager) PrefixFingerprint() string {
	return m.prefixHash
}

// NextTurn advances the turn counter and returns the new sequence
// number. Messages appended afterwards belong to that turn.
func (m *Manager) NextTurn() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turn++
	return m.turn
}

// Append adds a message to the sequence under the current turn. Token
// estimate is filled in if unset.
func (m *Manager) Append(msg types.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.Tokens == 0 {
		msg.Tokens = m.counter.CountMessage(msg)
	}
	m.entries = append(m.entries, entry{msg: msg, turn: m.turn})
}

// Messages returns a copy of the current sequence.
func (m *Manager) Messages() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Message, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.msg
	}
	return out
}

// TokenEstimate returns the running estimate: prefix plus all messages.
func (m *Manager) TokenEstimate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimateLocked()
}

func (m *Manager) estimateLocked() int {
	total := m.prefixTokens
	for _, e := range m.entries {
		total += e.msg.Tokens
	}
	return total
}

// BuildPrompt enforces the budget and returns the immutable system
// prefix plus the message sequence for the next model call.
func (m *Manager) BuildPrompt(ctx context.Context) (string, []types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enforceBudgetLocked(ctx); err != nil {
		return "", nil, err
	}

	msgs := make([]types.Message, len(m.entries))
	for i, e := range m.entries {
		msgs[i] = e.msg
	}
	return m.prefix, msgs, nil
}

// enforceBudgetLocked keeps the estimate within budget. When the
// estimate crosses the compression threshold, turns older than the
// recent window are summarized into one synthetic message, preserving
// causal order. Pinned messages and recent turns are never evicted.
func (m *Manager) enforceBudgetLocked(ctx context.Context) error {
	threshold := int(float64(m.cfg.TokenBudget) * m.cfg.CompressionThreshold)
	if m.estimateLocked() <= threshold {
		return nil
	}

	cutoff := m.turn - m.cfg.RecentTurnWindow

	var compressible []entry
	var kept []entry
	for _, e := range m.entries {
		if !e.msg.Pinned && e.turn <= cutoff {
			compressible = append(compressible, e)
		} else {
			kept = append(kept, e)
		}
	}
	if len(compressible) == 0 {
		return m.hardTrimLocked()
	}

	var transcript strings.Builder
	oldestTurn := compressible[0].turn
	for _, e := range compressible {
		fmt.Fprintf(&transcript, "[%s] %s\n", e.msg.Role, e.msg.Content)
		for _, call := range e.msg.ToolCalls {
			fmt.Fprintf(&transcript, "[tool call] %s\n", call.Name)
		}
	}

	summary, err := m.summarizer.Summarize(ctx, transcript.String())
	if err != nil {
		// Summarization is best-effort; fall back to truncating the
		// transcript so the budget still holds.
		logging.Context("summarization failed, truncating: %v", err)
		summary = truncateText(transcript.String(), 2000)
	}

	synthetic := entry{
		msg: types.Message{
			Role:    types.RoleAssistant,
			Content: "Summary of earlier conversation:\n" + summary,
		},
		turn: oldestTurn,
	}
	synthetic.msg.Tokens = m.counter.CountMessage(synthetic.msg)

	before := m.estimateLocked()
	m.entries = append([]entry{synthetic}, kept...)
	logging.Context("compressed %d messages: %d -> %d tokens",
		len(compressible), before, m.estimateLocked())

	if m.estimateLocked() > m.cfg.TokenBudget {
		return m.hardTrimLocked()
	}
	return nil
}

// hardTrimLocked is the last resort when summarization cannot bring
// the estimate under budget: truncate the largest non-pinned message
// bodies, oldest first.
func (m *Manager) hardTrimLocked() error {
	for i := range m.entries {
		if m.estimateLocked() <= m.cfg.TokenBudget {
			return nil
		}
		e := &m.entries[i]
		if e.msg.Pinned || len(e.msg.Content) <= 400 {
			continue
		}
		e.msg.Content = truncateText(e.msg.Content, 400)
		e.msg.Tokens = m.counter.CountMessage(e.msg)
	}
	if m.estimateLocked() > m.cfg.TokenBudget {
		return fmt.Errorf("context exceeds token budget of %d after compression", m.cfg.TokenBudget)
	}
	return nil
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n...[truncated]"
}

// Package browser manages a shared headless Chrome instance for the
// browser tool family. One browser serves the whole process; each
// navigation gets its own page.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"qoze/internal/logging"
)

// Config holds browser launch settings.
type Config struct {
	// DebuggerURL connects to an already-running Chrome instead of
	// launching one.
	DebuggerURL string `json:"debugger_url"`
	Headless    bool   `json:"headless"`
	// NavigationTimeout bounds page loads.
	NavigationTimeout time.Duration `json:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		NavigationTimeout: 30 * time.Second,
	}
}

// Manager owns the browser connection. Lazily started on first use.
type Manager struct {
	cfg Config

	mu         sync.RWMutex
	browser    *rod.Browser
	controlURL string
}

// NewManager creates a manager; the browser is not launched until the
// first page is requested.
func NewManager(cfg Config) *Manager {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	return &Manager{cfg: cfg}
}

// Start connects to an existing Chrome or launches a new one.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		logging.Browser("stale browser connection, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" {
		url, err := launcher.New().Headless(m.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("failed to launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	logging.Browser("connected: %s", controlURL)
	return nil
}

func (m *Manager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	if m.browser != nil {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()
	return m.Start(ctx)
}

// IsConnected reports whether the browser is up.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// OpenPage navigates a fresh page to the URL and waits for load.
// The caller owns the returned page and must Close it.
func (m *Manager) OpenPage(ctx context.Context, url string) (*rod.Page, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	browser := m.browser
	m.mu.RUnlock()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	page = page.Context(ctx).Timeout(m.cfg.NavigationTimeout)
	if err := page.Navigate(url); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("page load timed out for %s: %w", url, err)
	}
	return page, nil
}

// Shutdown closes the browser.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	return err
}

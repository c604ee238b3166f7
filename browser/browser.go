// Package browser owns the controlled Chrome instance and the watched tabs
// (sessions) the engine runs in.
package browser

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/stealthmode/config"
	"github.com/use-agent/stealthmode/dom/roddom"
	"github.com/use-agent/stealthmode/engine"
	"github.com/use-agent/stealthmode/models"
	"github.com/use-agent/stealthmode/settings"
	"github.com/use-agent/stealthmode/stats"
)

// Options wires a Manager's sessions to the shared settings and stats bus.
type Options struct {
	Settings settings.Store
	Notifier stats.Notifier
	Logger   *slog.Logger
}

// Manager manages the browser lifecycle and the watched sessions.
// It is safe for concurrent use.
type Manager struct {
	browser   *rod.Browser
	pagePool  rod.Pool[rod.Page]
	cfg       config.BrowserConfig
	engineCfg config.EngineConfig
	opts      Options
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	reserved int
	pageUses map[*rod.Page]int
	wg       sync.WaitGroup
}

// maxPageUses is how many sessions a pooled tab serves before it is
// closed and replaced.
const maxPageUses = 50

// Session is one tab with a Runner driving the engine against it.
type Session struct {
	ID        string
	URL       string
	CreatedAt time.Time

	runner *engine.Runner
	remote bool
	cancel context.CancelFunc
	done   chan struct{}
}

// Info returns a snapshot of the session and its runner.
func (s *Session) Info() models.SessionInfo {
	st := s.runner.Status()
	return models.SessionInfo{
		ID:                 s.ID,
		URL:                st.URL,
		CreatedAt:          s.CreatedAt,
		Strategy:           st.Strategy,
		Enabled:            st.Enabled,
		InterventionActive: st.InterventionActive,
		Passes:             st.Passes,
		Skipped:            st.Counts.Skipped,
		SpedUp:             st.Counts.SpedUp,
	}
}

// New launches the browser and initialises the page pool.
func New(cfg config.BrowserConfig, engineCfg config.EngineConfig, opts Options) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.DefaultProxy != "" {
		l = l.Proxy(cfg.DefaultProxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "TranslateUI")
	// Watched tabs sit in the background; timers must keep firing.
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("autoplay-policy"), "no-user-gesture-required")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewAPIError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	logger.Info("browser: launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, models.NewAPIError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	return &Manager{
		browser:   b,
		pagePool:  rod.NewPagePool(cfg.MaxSessions),
		cfg:       cfg,
		engineCfg: engineCfg,
		opts:      opts,
		logger:    logger,
		sessions:  make(map[string]*Session),
		pageUses:  make(map[*rod.Page]int),
	}, nil
}

// Stats returns a snapshot of session pool utilisation.
func (m *Manager) Stats() models.PoolStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.PoolStats{
		MaxSessions:    m.cfg.MaxSessions,
		ActiveSessions: len(m.sessions),
	}
}

// Open navigates a tab to req.URL, picks the strategy for the landed URL
// and starts a runner on it. The runner lives until CloseSession or Close.
func (m *Manager) Open(ctx context.Context, req *models.OpenSessionRequest) (models.SessionInfo, error) {
	if req.CDPURL != "" {
		return m.openRemote(ctx, req)
	}

	if !m.reserve() {
		return models.SessionInfo{}, models.NewAPIError(models.ErrCodeSessionLimit,
			fmt.Sprintf("all %d sessions in use", m.cfg.MaxSessions), nil)
	}

	page, err := m.pagePool.Get(func() (*rod.Page, error) {
		return m.browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		m.unreserve()
		return models.SessionInfo{}, models.NewAPIError(models.ErrCodeBrowserCrash, "failed to create page", err)
	}
	release := func() {
		// page carries no request context, so this works after ctx expired.
		if err := page.Navigate("about:blank"); err != nil {
			m.logger.Warn("browser: cleanup navigate failed", "error", err)
		}
		if len(req.Headers) > 0 {
			_ = proto.NetworkSetExtraHTTPHeaders{Headers: proto.NetworkHeaders{}}.Call(page)
		}
		m.putPage(page)
	}

	s, err := m.start(ctx, page, req, release, false)
	if err != nil {
		release()
		m.unreserve()
		return models.SessionInfo{}, err
	}
	return s.Info(), nil
}

// openRemote attaches to a user-provided CDP endpoint. Closing the session
// closes only the tab it created and disconnects.
func (m *Manager) openRemote(ctx context.Context, req *models.OpenSessionRequest) (models.SessionInfo, error) {
	b := rod.New().ControlURL(req.CDPURL)
	if err := b.Connect(); err != nil {
		return models.SessionInfo{}, models.NewAPIError(models.ErrCodeBrowserCrash, "failed to connect to CDP URL", err)
	}
	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		return models.SessionInfo{}, models.NewAPIError(models.ErrCodeBrowserCrash, "failed to create page on CDP browser", err)
	}
	release := func() {
		_ = page.Close()
		_ = b.Close()
	}

	s, err := m.start(ctx, page, req, release, true)
	if err != nil {
		release()
		return models.SessionInfo{}, err
	}
	return s.Info(), nil
}

func (m *Manager) start(ctx context.Context, page *rod.Page, req *models.OpenSessionRequest, release func(), remote bool) (*Session, error) {
	unhook := func() error { return nil }
	if req.Stealth == nil || *req.Stealth {
		remove, err := page.EvalOnNewDocument(stealth.JS)
		if err != nil {
			return nil, models.NewAPIError(models.ErrCodeBrowserCrash, "failed to inject stealth script", err)
		}
		unhook = remove
	}
	fail := func(err error) (*Session, error) {
		_ = unhook()
		return nil, err
	}

	if len(req.Headers) > 0 {
		if err := (proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(req.Headers)}).Call(page); err != nil {
			m.logger.Warn("browser: set extra headers failed", "error", err)
		}
	}

	navCtx, cancelNav := context.WithTimeout(ctx, m.cfg.NavigationTimeout)
	defer cancelNav()
	p := page.Context(navCtx)
	if err := p.Navigate(req.URL); err != nil {
		return fail(categorizeError(err, "navigation to target URL failed"))
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		m.logger.Debug("browser: DOM did not settle, starting anyway", "error", err)
	}

	id := randomID()
	logger := m.logger.With("session", id)

	runCtx, cancel := context.WithCancel(context.Background())
	doc, err := roddom.New(runCtx, page, logger)
	if err != nil {
		cancel()
		return fail(models.NewAPIError(models.ErrCodeBrowserCrash, "failed to attach to page", err))
	}

	landed := doc.Location()
	strategy, debounce := m.strategyFor(req.Strategy, landed, logger)
	runner := engine.NewRunner(doc, strategy, engine.Options{
		Settings: m.opts.Settings,
		Notifier: m.opts.Notifier,
		Debounce: debounce,
		Logger:   logger,
	})

	s := &Session{
		ID:        id,
		URL:       landed,
		CreatedAt: time.Now(),
		runner:    runner,
		remote:    remote,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	m.register(s)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(s.done)
		defer release()
		defer func() { _ = unhook() }()
		defer doc.Close()

		if err := runner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("browser: runner stopped", "error", err)
		}
	}()

	logger.Info("browser: session opened", "url", landed, "strategy", strategy.Name())
	return s, nil
}

func (m *Manager) strategyFor(name, location string, logger *slog.Logger) (engine.Strategy, time.Duration) {
	switch name {
	case engine.NameSite:
		return engine.NewSite(m.engineCfg, logger), 0
	case engine.NameGeneric:
		return engine.NewGeneric(m.engineCfg, logger), m.engineCfg.MutationDebounce
	}
	s := engine.Select(location, m.engineCfg, logger)
	if s.Name() == engine.NameGeneric {
		return s, m.engineCfg.MutationDebounce
	}
	return s, 0
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (models.SessionInfo, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return models.SessionInfo{}, errSessionNotFound(id)
	}
	return s.Info(), nil
}

// List returns all sessions, oldest first.
func (m *Manager) List() []models.SessionInfo {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	out := make([]models.SessionInfo, len(all))
	for i, s := range all {
		out[i] = s.Info()
	}
	return out
}

// CloseSession stops the session's runner and returns its tab to the pool.
// It waits until the runner has exited or ctx is done.
func (m *Manager) CloseSession(ctx context.Context, id string) (models.SessionInfo, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return models.SessionInfo{}, errSessionNotFound(id)
	}

	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		return s.Info(), ctx.Err()
	}
	m.logger.Info("browser: session closed", "session", id)
	return s.Info(), nil
}

// Close stops every session, drains the page pool and kills the browser.
func (m *Manager) Close() {
	m.mu.Lock()
	for id, s := range m.sessions {
		s.cancel()
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	m.wg.Wait()

	m.logger.Info("browser: shutting down, draining page pool")
	m.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	if err := m.browser.Close(); err != nil {
		m.logger.Warn("browser: close failed", "error", err)
	}
	m.logger.Info("browser: shutdown complete")
}

// putPage returns page to the pool, or closes it once it has served
// maxPageUses sessions so the pool creates a fresh one.
func (m *Manager) putPage(page *rod.Page) {
	m.mu.Lock()
	m.pageUses[page]++
	retire := m.pageUses[page] >= maxPageUses
	if retire {
		delete(m.pageUses, page)
	}
	m.mu.Unlock()

	if retire {
		m.logger.Debug("browser: retiring page", "uses", maxPageUses)
		_ = page.Close()
		m.pagePool.Put(nil)
		return
	}
	m.pagePool.Put(page)
}

func (m *Manager) reserve() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.MaxSessions > 0 && m.reserved+m.localSessionsLocked() >= m.cfg.MaxSessions {
		return false
	}
	m.reserved++
	return true
}

// register publishes s. A local session turns its reservation into a
// counted session in the same step.
func (m *Manager) register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	if !s.remote {
		m.reserved--
	}
}

func (m *Manager) unreserve() {
	m.mu.Lock()
	m.reserved--
	m.mu.Unlock()
}

// localSessionsLocked counts the sessions holding a pool page.
func (m *Manager) localSessionsLocked() int {
	n := 0
	for _, s := range m.sessions {
		if !s.remote {
			n++
		}
	}
	return n
}

func errSessionNotFound(id string) error {
	return models.NewAPIError(models.ErrCodeSessionNotFound, "no session "+id, nil)
}

// categorizeError wraps navigation errors into typed APIErrors so the API
// layer can map them to HTTP status codes.
func categorizeError(err error, msg string) *models.APIError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewAPIError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewAPIError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewAPIError(models.ErrCodeNavigation, msg, err)
	}
}

func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// randomID generates a short random hex string for session IDs.
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

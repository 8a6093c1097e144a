package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/GregMSThompson/dashboard-service/internal/controls"
	"github.com/GregMSThompson/dashboard-service/internal/errs"
	"github.com/GregMSThompson/dashboard-service/internal/models"
	"github.com/GregMSThompson/dashboard-service/internal/query"
	"github.com/GregMSThompson/dashboard-service/internal/render"
	"github.com/GregMSThompson/dashboard-service/pkg/logger"
)

const defaultIdleTTL = 30 * time.Minute

// Deps are the collaborators shared by every session. Analytics and Options
// build per-session clients; a nil token source means the caller has no
// credentials and the clients skip their network calls. CustomMetrics, when
// set, answers custom_<id> sources. Sessions unused for IdleTTL are closed
// by Run.
type Deps struct {
	Dashboards    Dashboards
	CustomMetrics CustomMetrics
	Analytics     func(ts oauth2.TokenSource) query.Fetcher
	Options       func(ts oauth2.TokenSource, organizationID string) controls.OptionLookup
	ServiceToken  oauth2.TokenSource
	IdleTTL       time.Duration
	Clock         func() time.Time
}

// CustomMetrics resolves the custom metrics a caller may query.
type CustomMetrics interface {
	GetCustomMetric(ctx context.Context, caller models.Caller, id string) (*models.CustomMetric, error)
}

// Manager owns the live sessions. Sessions are scoped to the user who
// opened them.
type Manager struct {
	deps       Deps
	dispatcher *render.Dispatcher
	newID      func() string

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(deps Deps) *Manager {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.IdleTTL <= 0 {
		deps.IdleTTL = defaultIdleTTL
	}
	return &Manager{
		deps:       deps,
		dispatcher: render.NewDispatcher(),
		newID:      uuid.NewString,
		sessions:   map[string]*Session{},
	}
}

// Open loads a dashboard the caller can see and starts a session on it.
// readOnly opens a viewer session: filters and click-through work, edits
// are refused.
func (m *Manager) Open(ctx context.Context, caller models.Caller, dashboardID string, readOnly bool) (*Session, error) {
	d, err := m.deps.Dashboards.GetDashboard(ctx, caller, dashboardID)
	if err != nil {
		return nil, err
	}

	ts, token := m.tokenSource(caller)
	cfg := sessionConfig{
		id:         m.newID(),
		caller:     caller,
		token:      token,
		readOnly:   readOnly,
		dashboards: m.deps.Dashboards,
		dispatcher: m.dispatcher,
		clock:      m.deps.Clock,
	}
	if m.deps.Analytics != nil {
		cfg.fetcher = m.deps.Analytics(ts)
	}
	if m.deps.CustomMetrics != nil {
		cfg.fetcher = query.WithCustomMetrics(cfg.fetcher, query.MetricDefinitionsFunc(
			func(ctx context.Context, id string) (*models.CustomMetric, error) {
				return m.deps.CustomMetrics.GetCustomMetric(ctx, caller, id)
			}))
	}
	if m.deps.Options != nil {
		cfg.lookup = m.deps.Options(ts, caller.OrganizationID)
	}

	log, ctx := logger.With(ctx, "session_id", cfg.id, "dashboard_id", d.ID)
	s := open(ctx, cfg, d)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	log.Info("session opened", "widgets", len(d.Widgets), "read_only", readOnly)
	return s, nil
}

// Get returns the caller's session with id. Sessions of other users are
// reported as not found. Each lookup marks the session used and hands its
// clients the caller's current ID token.
func (m *Manager) Get(caller models.Caller, id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok || s.caller.UID != caller.UID {
		return nil, errs.NewNotFoundError("session not found")
	}
	s.touch(m.deps.Clock())
	s.token.set(caller.Token)
	return s, nil
}

func (m *Manager) Close(ctx context.Context, caller models.Caller, id string) error {
	s, err := m.Get(caller, id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	s.Close()
	logger.FromContext(ctx).Info("session closed", "session_id", id)
	return nil
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[string]*Session{}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Run closes idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(min(m.deps.IdleTTL/2, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap(ctx)
		}
	}
}

// Reap closes the sessions unused for longer than the idle TTL and returns
// how many it closed.
func (m *Manager) Reap(ctx context.Context) int {
	now := m.deps.Clock()
	var idle []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.lastUsed()) > m.deps.IdleTTL {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	log := logger.FromContext(ctx)
	for _, s := range idle {
		s.Close()
		log.Info("session expired", "session_id", s.id, "idle", now.Sub(s.lastUsed()).String())
	}
	return len(idle)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// tokenSource prefers the service credential and falls back to the caller's
// own bearer token. The returned callerToken is nil unless the caller's token
// is in use.
func (m *Manager) tokenSource(caller models.Caller) (oauth2.TokenSource, *callerToken) {
	if m.deps.ServiceToken != nil {
		return m.deps.ServiceToken, nil
	}
	if caller.Token == "" {
		return nil, nil
	}
	ct := &callerToken{value: caller.Token}
	return ct, ct
}

// callerToken serves the most recent Firebase ID token seen for a session.
// ID tokens expire after an hour, so Get replaces it on every request.
type callerToken struct {
	mu    sync.RWMutex
	value string
}

func (c *callerToken) set(token string) {
	if c == nil || token == "" {
		return
	}
	c.mu.Lock()
	c.value = token
	c.mu.Unlock()
}

func (c *callerToken) Token() (*oauth2.Token, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &oauth2.Token{AccessToken: c.value, TokenType: "Bearer"}, nil
}

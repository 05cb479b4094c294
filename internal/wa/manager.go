package wa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/i9placesolutions/pulse-salon-manager-sub001/internal/metrics"
	"github.com/i9placesolutions/pulse-salon-manager-sub001/internal/repo"
)

const sessionCacheTTL = 30 * 24 * time.Hour

// BSP is the instance API surface the manager drives.
type BSP interface {
	CreateInstance(ctx context.Context, name string) (*Instance, error)
	Connect(ctx context.Context, token string) (*Instance, error)
	Status(ctx context.Context, token string) (*Instance, error)
}

// InstanceStore persists instance identity and observed status.
type InstanceStore interface {
	UpsertMessagingInstance(ctx context.Context, inst repo.MessagingInstance) error
	UpdateMessagingInstanceStatus(ctx context.Context, token, status string, profileName *string) error
	GetMessagingInstance(ctx context.Context, name string) (*repo.MessagingInstance, error)
}

// SessionCache keeps tokens across restarts so a reconnect does not
// provision a new instance.
type SessionCache interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
}

type cachedSession struct {
	Token     string    `json:"token"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConnectResult is returned to the caller that initiated pairing.
type ConnectResult struct {
	InstanceName string `json:"name"`
	Status       string `json:"status"`
	QRCode       string `json:"qrcode,omitempty"`
	PairCode     string `json:"paircode,omitempty"`
}

// StatusSnapshot reports the current state of an instance.
type StatusSnapshot struct {
	InstanceName string `json:"name"`
	Status       string `json:"status"`
	ProfileName  string `json:"profile_name,omitempty"`
	Polling      bool   `json:"polling"`
}

// Manager owns the connect flow for messaging instances: it provisions
// tokens, starts pairing, and runs at most one poll session per instance
// until the connected transition is observed and persisted.
type Manager struct {
	client   BSP
	store    InstanceStore
	cache    SessionCache
	logger   *slog.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	baseCtx  context.Context

	mu       sync.Mutex
	sessions map[string]*PollSession
}

// ManagerConfig holds Manager construction parameters.
type ManagerConfig struct {
	Client       BSP
	Store        InstanceStore
	Cache        SessionCache
	PollInterval time.Duration
}

// NewManager creates a manager. Poll sessions outlive individual HTTP
// requests, so they are bound to baseCtx rather than request contexts.
func NewManager(baseCtx context.Context, cfg ManagerConfig, logger *slog.Logger, m *metrics.Metrics) *Manager {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Manager{
		client:   cfg.Client,
		store:    cfg.Store,
		cache:    cfg.Cache,
		logger:   logger.With("component", "wa_manager"),
		metrics:  m,
		interval: interval,
		baseCtx:  baseCtx,
		sessions: make(map[string]*PollSession),
	}
}

// ConnectInstance starts (or restarts) pairing for the named instance and
// begins polling its status. The returned QR/pair code is shown to the user;
// the poll session completes the flow in the background.
func (m *Manager) ConnectInstance(ctx context.Context, name, profileID string) (*ConnectResult, error) {
	if name == "" {
		return nil, errors.New("instance name is required")
	}

	token, err := m.resolveToken(ctx, name)
	if err != nil {
		return nil, err
	}

	inst, err := m.client.Connect(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("connect instance %s: %w", name, err)
	}

	var pid *string
	if profileID != "" {
		pid = &profileID
	}
	if err := m.store.UpsertMessagingInstance(ctx, repo.MessagingInstance{
		Token:     token,
		Name:      name,
		ProfileID: pid,
		Status:    StatusDisconnected,
	}); err != nil {
		return nil, err
	}

	m.startPoll(name, token)

	return &ConnectResult{
		InstanceName: name,
		Status:       StatusDisconnected,
		QRCode:       inst.QRCode,
		PairCode:     inst.PairCode,
	}, nil
}

// CancelConnect stops the poll session for the named instance, if any.
// Idempotent: cancelling an instance that is not polling reports false.
func (m *Manager) CancelConnect(name string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[name]
	if ok {
		delete(m.sessions, name)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	sess.Stop()
	m.logger.Info("connect polling cancelled", "instance", name)
	return true
}

// InstanceStatus reports the live status of an instance, falling back to the
// last persisted state when the BSP is unreachable.
func (m *Manager) InstanceStatus(ctx context.Context, name string) (*StatusSnapshot, error) {
	stored, err := m.store.GetMessagingInstance(ctx, name)
	if err != nil {
		return nil, err
	}

	snap := &StatusSnapshot{
		InstanceName: name,
		Status:       stored.Status,
		Polling:      m.polling(name),
	}
	if stored.ProfileName != nil {
		snap.ProfileName = *stored.ProfileName
	}

	live, err := m.client.Status(ctx, stored.Token)
	if err != nil {
		m.logger.Warn("live status fetch failed, serving stored state", "instance", name, "error", err)
		return snap, nil
	}
	snap.Status = live.Status
	if live.ProfileName != "" {
		snap.ProfileName = live.ProfileName
	}
	return snap, nil
}

// Close stops all running poll sessions.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*PollSession)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Stop()
	}
}

func (m *Manager) polling(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[name]
	return ok
}

// startPoll replaces any existing session for the instance with a fresh one.
func (m *Manager) startPoll(name, token string) {
	sess := StartPoll(m.baseCtx, PollConfig{
		InstanceName: name,
		Token:        token,
		Interval:     m.interval,
		Client:       m.client,
		OnConnected: func(ctx context.Context, inst *Instance) {
			m.completeConnect(ctx, name, token, inst)
		},
		Logger:  m.logger,
		Metrics: m.metrics,
	})

	m.mu.Lock()
	if old, ok := m.sessions[name]; ok {
		old.Stop()
	}
	m.sessions[name] = sess
	m.mu.Unlock()
}

// completeConnect persists the connected transition: token to the session
// cache for continuity, status to the instance row.
func (m *Manager) completeConnect(ctx context.Context, name, token string, inst *Instance) {
	m.mu.Lock()
	delete(m.sessions, name)
	m.mu.Unlock()

	if m.cache != nil {
		entry := cachedSession{Token: token, Status: StatusConnected, UpdatedAt: time.Now()}
		if err := m.cache.SetJSON(ctx, sessionCacheKey(name), entry, sessionCacheTTL); err != nil {
			m.logger.Warn("failed caching instance session", "instance", name, "error", err)
		}
	}

	var profileName *string
	if inst.ProfileName != "" {
		pn := inst.ProfileName
		profileName = &pn
	}
	if err := m.store.UpdateMessagingInstanceStatus(ctx, token, StatusConnected, profileName); err != nil {
		m.logger.Error("failed persisting connected status", "instance", name, "error", err)
		if m.metrics != nil {
			m.metrics.Errors.WithLabelValues("wa_manager").Inc()
		}
		return
	}

	m.logger.Info("messaging instance connected", "instance", name, "profile_name", inst.ProfileName)
}

// resolveToken finds the token for an instance: session cache first, then
// the database, provisioning a new instance only when neither knows it.
func (m *Manager) resolveToken(ctx context.Context, name string) (string, error) {
	if m.cache != nil {
		var cached cachedSession
		ok, err := m.cache.GetJSON(ctx, sessionCacheKey(name), &cached)
		if err != nil {
			m.logger.Warn("session cache read failed", "instance", name, "error", err)
		} else if ok && cached.Token != "" {
			return cached.Token, nil
		}
	}

	stored, err := m.store.GetMessagingInstance(ctx, name)
	if err == nil {
		return stored.Token, nil
	}
	if !errors.Is(err, repo.ErrInstanceNotFound) {
		return "", err
	}

	created, err := m.client.CreateInstance(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create instance %s: %w", name, err)
	}
	return created.Token, nil
}

func sessionCacheKey(name string) string {
	return "wa:instance:" + name
}

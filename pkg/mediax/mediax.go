package mediax

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gardenledger/fieldsync/pkg/errx"
	"github.com/gardenledger/fieldsync/pkg/fsx"
	"github.com/gardenledger/fieldsync/pkg/logx"
)

// DefaultExpiration is how long handed-out media URLs stay valid.
const DefaultExpiration = time.Hour

var mediaxErrors = errx.NewRegistry("MEDIAX")

var (
	ErrPresignFailed = mediaxErrors.Register("PRESIGN_FAILED", errx.TypeExternal, 502, "Failed to create media URL")
)

// handle is one live URL and its ownership. Handles get their own generated
// ids: presigners may mint the same URL for the same path twice (the local
// store always does), and each issue must be releasable independently.
type handle struct {
	url        string
	path       string
	trackingID string
	createdAt  time.Time
}

// Stats is the current handle census.
type Stats struct {
	TotalURLs  int `json:"total_urls"`
	TrackedIDs int `json:"tracked_ids"`
}

// Manager bounds the lifetime of handed-out media URLs by tying them to the
// job they belong to, so an abandoned job cannot leak handles for the whole
// session.
type Manager struct {
	presigner  fsx.Presigner
	expiration time.Duration
	now        func() time.Time

	mu      sync.Mutex
	handles map[string]handle              // handle id -> handle
	tracked map[string]map[string]struct{} // trackingID -> handle ids
}

// Option configures a Manager.
type Option func(*Manager)

// WithExpiration sets the presigned URL validity window.
func WithExpiration(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.expiration = d
		}
	}
}

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a media resource manager over the given presigner.
func NewManager(presigner fsx.Presigner, options ...Option) *Manager {
	m := &Manager{
		presigner:  presigner,
		expiration: DefaultExpiration,
		now:        time.Now,
		handles:    make(map[string]handle),
		tracked:    make(map[string]map[string]struct{}),
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// CreateURL hands out a download URL for a stored media path. A non-empty
// trackingID associates the URL for bulk release via CleanupURLs.
func (m *Manager) CreateURL(ctx context.Context, path, trackingID string) (string, error) {
	url, err := m.presigner.PresignDownload(ctx, path, m.expiration)
	if err != nil {
		return "", mediaxErrors.NewWithCause(ErrPresignFailed, err).WithDetail("path", path)
	}

	id := uuid.New().String()

	m.mu.Lock()
	m.handles[id] = handle{url: url, path: path, trackingID: trackingID, createdAt: m.now()}
	if trackingID != "" {
		if m.tracked[trackingID] == nil {
			m.tracked[trackingID] = make(map[string]struct{})
		}
		m.tracked[trackingID][id] = struct{}{}
	}
	m.mu.Unlock()

	return url, nil
}

// CreateURLs hands out URLs for several paths under one tracking id. On any
// failure the URLs already created by this call are released, so a partial
// batch never leaks.
func (m *Manager) CreateURLs(ctx context.Context, paths []string, trackingID string) ([]string, error) {
	urls := make([]string, 0, len(paths))
	for _, path := range paths {
		url, err := m.CreateURL(ctx, path, trackingID)
		if err != nil {
			for _, created := range urls {
				m.CleanupURL(created)
			}
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// CleanupURL releases one handle for the given URL. When the same URL was
// issued more than once, one call releases one issue. Releasing an unknown
// or already-released URL logs and continues.
func (m *Manager) CleanupURL(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, h := range m.handles {
		if h.url == url {
			m.releaseLocked(id)
			return
		}
	}
	logx.WithField("url", url).Debug("mediax: release of unknown URL ignored")
}

func (m *Manager) releaseLocked(id string) {
	h, ok := m.handles[id]
	if !ok {
		return
	}
	delete(m.handles, id)

	if h.trackingID != "" {
		if ids := m.tracked[h.trackingID]; ids != nil {
			delete(ids, id)
			if len(ids) == 0 {
				delete(m.tracked, h.trackingID)
			}
		}
	}
}

// CleanupURLs releases every handle associated with a tracking id. An
// unknown id logs and continues.
func (m *Manager) CleanupURLs(trackingID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids, ok := m.tracked[trackingID]
	if !ok {
		logx.WithField("tracking_id", trackingID).
			Debug("mediax: release of unknown tracking id ignored")
		return
	}
	pending := make([]string, 0, len(ids))
	for id := range ids {
		pending = append(pending, id)
	}
	for _, id := range pending {
		m.releaseLocked(id)
	}
}

// CleanupAll releases every handle and returns how many were live.
func (m *Manager) CleanupAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := len(m.handles)
	m.handles = make(map[string]handle)
	m.tracked = make(map[string]map[string]struct{})
	if released > 0 {
		logx.Infof("mediax: released all %d media handles", released)
	}
	return released
}

// Stats reports the current handle census.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{TotalURLs: len(m.handles), TrackedIDs: len(m.tracked)}
}

// CleanupStale releases handles older than maxAge. This is the backstop for
// jobs abandoned without explicit cleanup; run it periodically.
func (m *Manager) CleanupStale(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	released := 0
	for id, h := range m.handles {
		if h.createdAt.Before(cutoff) {
			m.releaseLocked(id)
			released++
		}
	}
	if released > 0 {
		logx.Infof("mediax: released %d stale media handles", released)
	}
	return released
}

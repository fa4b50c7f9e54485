// Package session keeps one workflow driver per client, expiring idle ones.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/Brownie44l1/waste-api/internal/metrics"
	"github.com/Brownie44l1/waste-api/internal/workflow"
)

var ErrNotFound = errors.New("session not found")

// Session pairs a driver with the file input it drives.
type Session struct {
	ID      string
	Driver  *workflow.Driver
	Input   *FileInput
	Created time.Time
}

// FileInput records what the remote file picker has been asked to do.
type FileInput struct {
	mu        sync.Mutex
	requested bool
	opens     int
}

// Open marks the picker as requested by the upload action.
func (f *FileInput) Open() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = true
	f.opens++
}

// Clear resets the picker value.
func (f *FileInput) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = false
}

// Requested reports whether an upload was asked for and not yet cleared.
func (f *FileInput) Requested() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requested
}

// DriverFactory builds the driver for a new session.
type DriverFactory func(id string, input workflow.FileInput) *workflow.Driver

// Manager stores sessions in a TTL cache; every access extends the TTL.
type Manager struct {
	mu      sync.Mutex
	cache   *cache.Cache
	ttl     time.Duration
	newFn   DriverFactory
	metrics *metrics.WorkflowMetrics
	logger  *zap.Logger
}

func NewManager(ttl time.Duration, newFn DriverFactory, m *metrics.WorkflowMetrics, logger *zap.Logger) *Manager {
	mgr := &Manager{
		cache:   cache.New(ttl, ttl/2),
		ttl:     ttl,
		newFn:   newFn,
		metrics: m,
		logger:  logger.Named("sessions"),
	}
	mgr.cache.OnEvicted(func(id string, v interface{}) {
		s := v.(*Session)
		s.Driver.Close()
		mgr.metrics.SessionClosed()
		mgr.logger.Debug("session closed", zap.String("session_id", id))
	})
	return mgr
}

// Create starts a new session in the Initial phase.
func (m *Manager) Create() *Session {
	id := uuid.NewString()
	input := &FileInput{}
	s := &Session{ID: id, Driver: m.newFn(id, input), Input: input, Created: time.Now().UTC()}
	m.cache.Set(id, s, m.ttl)
	m.metrics.SessionOpened()
	m.logger.Debug("session created", zap.String("session_id", id))
	return s
}

// Get returns the session and extends its lifetime along with that of the
// image it shows. A session deleted or expired concurrently stays gone.
func (m *Manager) Get(id string) (*Session, error) {
	v, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	if err := m.cache.Replace(id, v, m.ttl); err != nil {
		return nil, ErrNotFound
	}
	s := v.(*Session)
	s.Driver.KeepAlive()
	return s, nil
}

// Delete closes and drops the session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cache.Get(id); !ok {
		return ErrNotFound
	}
	m.cache.Delete(id)
	return nil
}

func (m *Manager) Len() int {
	return m.cache.ItemCount()
}

// Close drops every session.
func (m *Manager) Close() {
	for id := range m.cache.Items() {
		m.cache.Delete(id)
	}
}

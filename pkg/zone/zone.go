package zone

import (
	"errors"
	"sync"
	"time"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// Zone errors.
var (
	ErrZoneNotFound = errors.New("zone not found")
	ErrZoneExists   = errors.New("zone already exists")
)

// Manager tracks ZoneMode for every configured zone.
type Manager struct {
	mu sync.RWMutex

	modes map[model.ZoneKey]*model.ZoneMode

	onModeChange func(old, new model.ZoneMode)
}

// NewManager creates an empty zone mode registry.
func NewManager() *Manager {
	return &Manager{modes: make(map[model.ZoneKey]*model.ZoneMode)}
}

// Register adds a zone in ZoneAuto mode. Returns ErrZoneExists if already
// registered.
func (m *Manager) Register(z model.ZoneKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.modes[z]; exists {
		return ErrZoneExists
	}
	m.modes[z] = &model.ZoneMode{Zone: z, Kind: model.ZoneAuto, Source: "startup", ChangedAt: time.Now()}
	return nil
}

// Mode returns the current mode of a zone.
func (m *Manager) Mode(z model.ZoneKey) (model.ZoneMode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	zm, exists := m.modes[z]
	if !exists {
		return model.ZoneMode{}, ErrZoneNotFound
	}
	return *zm, nil
}

// SetMode transitions a zone's mode and records the source of the change.
// Callers outside the alarm/failsafe manager must never pass
// model.ZoneFailsafe; see package doc.
func (m *Manager) SetMode(z model.ZoneKey, kind model.ZoneModeKind, source string) error {
	m.mu.Lock()

	zm, exists := m.modes[z]
	if !exists {
		m.mu.Unlock()
		return ErrZoneNotFound
	}

	old := *zm
	zm.Kind = kind
	zm.Source = source
	zm.ChangedAt = time.Now()
	newMode := *zm

	cb := m.onModeChange
	m.mu.Unlock()

	if cb != nil && old.Kind != newMode.Kind {
		cb(old, newMode)
	}
	return nil
}

// IsFailsafe reports whether the zone is currently in failsafe.
func (m *Manager) IsFailsafe(z model.ZoneKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	zm, exists := m.modes[z]
	return exists && zm.Kind == model.ZoneFailsafe
}

// AllZones returns every registered zone key.
func (m *Manager) AllZones() []model.ZoneKey {
	m.mu.RLock()
	defer m.mu.RUnlock()

	zs := make([]model.ZoneKey, 0, len(m.modes))
	for z := range m.modes {
		zs = append(zs, z)
	}
	return zs
}

// OnModeChange sets a callback invoked after any mode transition (e.g. for
// telemetry or persistence).
func (m *Manager) OnModeChange(fn func(old, new model.ZoneMode)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onModeChange = fn
}

package session

import "latencyctl/internal/models"

// SettingsMirror caches the backend configuration. The backend is
// authoritative once Load has succeeded; until then the mirror holds the
// backend's documented defaults.
type SettingsMirror struct {
	current models.Settings
	loaded  bool
}

// NewSettingsMirror creates a mirror seeded with default settings.
func NewSettingsMirror() *SettingsMirror {
	return &SettingsMirror{current: models.DefaultSettings()}
}

// Load overwrites the mirror with a backend-provided aggregate.
func (m *SettingsMirror) Load(s models.Settings) {
	m.current = s.Clone()
	m.loaded = true
}

// Write records a locally edited aggregate ahead of the backend push.
func (m *SettingsMirror) Write(s models.Settings) {
	m.current = s.Clone()
}

// Get returns a copy of the mirrored settings.
func (m *SettingsMirror) Get() models.Settings {
	return m.current.Clone()
}

// Loaded reports whether the mirror has been filled from the backend.
func (m *SettingsMirror) Loaded() bool {
	return m.loaded
}

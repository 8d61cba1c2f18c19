// Package store persists camera configuration and session state as TOML.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/camfleet/internal/streams"
)

// DefaultMaxRecords bounds the record log kept in the state file.
const DefaultMaxRecords = 500

// cameraFile is the camera configuration file.
type cameraFile struct {
	Version int                           `toml:"version" json:"version"`
	Cameras map[string]streams.CameraSpec `toml:"cameras" json:"cameras"`
}

// stateFile holds runtime state written back by the supervisor and health monitor.
type stateFile struct {
	Sessions map[string]streams.SessionStatus `toml:"sessions"`
	Records  []streams.Record                 `toml:"records"`
}

// tomlStore implements streams.Store using TOML files.
type tomlStore struct {
	configPath string
	statePath  string
	maxRecords int

	mu      sync.RWMutex
	cameras *cameraFile
	state   *stateFile
}

// Store is streams.Store plus the persistence helpers the CLI needs.
type Store interface {
	streams.Store
	Save() error
	PutCamera(cam streams.CameraSpec) error
	RemoveCamera(id string) error
	Sessions() map[string]streams.SessionStatus
	Records() []streams.Record
	ConfigPath() string
}

// NewTOML creates a TOML store. An empty statePath places state.toml next to
// the camera file.
func NewTOML(configPath, statePath string) Store {
	if configPath == "" {
		configPath = "cameras.toml"
	}
	if statePath == "" {
		statePath = filepath.Join(filepath.Dir(configPath), "state.toml")
	}

	return &tomlStore{
		configPath: configPath,
		statePath:  statePath,
		maxRecords: DefaultMaxRecords,
		cameras: &cameraFile{
			Version: 1,
			Cameras: make(map[string]streams.CameraSpec),
		},
		state: &stateFile{
			Sessions: make(map[string]streams.SessionStatus),
		},
	}
}

// Load reads the camera file. A missing file yields an empty configuration.
func (s *tomlStore) Load() error {
	loaded := &cameraFile{}

	data, err := os.ReadFile(s.configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return fmt.Errorf("failed to read camera config: %w", err)
	default:
		if unmarshalErr := toml.Unmarshal(data, loaded); unmarshalErr != nil {
			return fmt.Errorf("failed to parse camera config: %w", unmarshalErr)
		}
	}

	if loaded.Cameras == nil {
		loaded.Cameras = make(map[string]streams.CameraSpec)
	}
	if loaded.Version == 0 {
		loaded.Version = 1
	}
	for id, cam := range loaded.Cameras {
		if cam.ID == "" {
			cam.ID = id
			loaded.Cameras[id] = cam
		}
		if cam.ID != id {
			return fmt.Errorf("camera %q declares mismatched id %q", id, cam.ID)
		}
	}

	s.mu.Lock()
	s.cameras = loaded
	s.mu.Unlock()
	return nil
}

// Save writes the camera file.
func (s *tomlStore) Save() error {
	s.mu.RLock()
	data, err := toml.Marshal(s.cameras)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal camera config: %w", err)
	}
	return writeFile(s.configPath, data)
}

// PutCamera adds or replaces a camera and saves the file.
func (s *tomlStore) PutCamera(cam streams.CameraSpec) error {
	s.mu.Lock()
	s.cameras.Cameras[cam.ID] = cam
	s.mu.Unlock()
	return s.Save()
}

// RemoveCamera deletes a camera and saves the file.
func (s *tomlStore) RemoveCamera(id string) error {
	s.mu.Lock()
	delete(s.cameras.Cameras, id)
	s.mu.Unlock()
	return s.Save()
}

// GetCamera retrieves a camera by ID.
func (s *tomlStore) GetCamera(id string) (streams.CameraSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cam, exists := s.cameras.Cameras[id]
	return cam, exists
}

// GetAllCameras returns a copy of all cameras.
func (s *tomlStore) GetAllCameras() map[string]streams.CameraSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]streams.CameraSpec, len(s.cameras.Cameras))
	for id, cam := range s.cameras.Cameras {
		out[id] = cam
	}
	return out
}

// SaveSessionStatus records the latest status of a session. Inactive
// sessions are dropped from the state file.
func (s *tomlStore) SaveSessionStatus(status streams.SessionStatus) error {
	s.mu.Lock()
	if status.State == streams.StateInactive {
		delete(s.state.Sessions, status.SessionID)
	} else {
		s.state.Sessions[status.SessionID] = status
	}
	s.mu.Unlock()
	return s.saveState()
}

// AppendRecord adds a record, discarding the oldest beyond the limit.
func (s *tomlStore) AppendRecord(rec streams.Record) error {
	s.mu.Lock()
	s.state.Records = append(s.state.Records, rec)
	if over := len(s.state.Records) - s.maxRecords; over > 0 {
		s.state.Records = append([]streams.Record(nil), s.state.Records[over:]...)
	}
	s.mu.Unlock()
	return s.saveState()
}

// Sessions returns the persisted session statuses.
func (s *tomlStore) Sessions() map[string]streams.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]streams.SessionStatus, len(s.state.Sessions))
	for id, st := range s.state.Sessions {
		out[id] = st
	}
	return out
}

// Records returns the persisted records, oldest first.
func (s *tomlStore) Records() []streams.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]streams.Record(nil), s.state.Records...)
}

// ConfigPath returns the camera file path.
func (s *tomlStore) ConfigPath() string {
	return s.configPath
}

func (s *tomlStore) saveState() error {
	s.mu.RLock()
	data, err := toml.Marshal(s.state)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return writeFile(s.statePath, data)
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

package streams

import (
	"errors"
)

// Reconcile converges the registry onto cameras: sessions of removed or
// disabled cameras are stopped, changed ones restarted and new enabled
// cameras started. Sessions in terminal Error with an unchanged config are
// left alone.
func (s *Supervisor) Reconcile(cameras map[string]CameraSpec) error {
	s.mu.Lock()
	running := make(map[string]SessionConfig, len(s.sessions))
	for id, sess := range s.sessions {
		running[id] = sess.config
	}
	s.mu.Unlock()

	var errs []error
	for id := range running {
		if cam, ok := cameras[id]; !ok || !cam.Enabled {
			s.logger.Info("Camera removed or disabled, stopping session", "session_id", id)
			if res := s.Stop(id); !res.OK {
				errs = append(errs, res.Err)
			}
		}
	}

	for id, cam := range cameras {
		if !cam.Enabled {
			continue
		}
		cfg := cam.SessionConfig()
		current, exists := running[id]
		switch {
		case !exists:
			s.logger.Info("Camera added, starting session", "session_id", id)
			if res := s.Start(cfg); !res.OK && !HasCode(res.Err, ErrCodeAlreadyActive) {
				errs = append(errs, res.Err)
			}
		case !current.Equal(cfg):
			s.logger.Info("Camera changed, restarting session", "session_id", id)
			if res := s.restartWith(cfg); !res.OK {
				errs = append(errs, res.Err)
			}
		}
	}
	return errors.Join(errs...)
}

// restartWith replaces a session's configuration.
func (s *Supervisor) restartWith(cfg SessionConfig) Result {
	if err := cfg.Validate(); err != nil {
		return failed(cfg.SessionID, s.stateOf(cfg.SessionID), err)
	}

	unlock := s.lockSession(cfg.SessionID)
	defer unlock()

	if res := s.stopLocked(cfg.SessionID); !res.OK {
		return res
	}
	return s.startLocked(cfg, true)
}

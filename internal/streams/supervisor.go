package streams

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/smazurov/camfleet/internal/events"
	"github.com/smazurov/camfleet/internal/logging"
)

// Activation modes decide what confirms a Starting session as Active.
const (
	// ActivationOutput trusts the transcoder reporting its input as opened.
	ActivationOutput = "output"
	// ActivationSegment waits for the playlist file to be written.
	ActivationSegment = "segment"
)

// CommandBuilder produces the transcoder argument vector, program first.
type CommandBuilder func(cfg SessionConfig, sourceURI string, profile QualityProfile, outputDir, outputKey string) ([]string, error)

// Options configures a Supervisor. Zero values take the documented defaults.
type Options struct {
	Store  Store
	Events events.Publisher

	// OutputDir receives playlists and segments of every session.
	OutputDir string
	// ActivationMode is ActivationOutput (default) or ActivationSegment.
	ActivationMode string

	MaxRetries         int           // default 3
	RetryBaseDelay     time.Duration // default 5s, attempt n waits n*base
	GracefulTimeout    time.Duration // default 5s before SIGKILL
	RestartSettleDelay time.Duration // default 1s between stop and start
	MetricsInterval    time.Duration // default 5s between metric events per session

	SegmentSeconds int
	PlaylistSize   int

	// CommandBuilder overrides the generated ffmpeg command.
	CommandBuilder CommandBuilder
}

func (o *Options) applyDefaults() {
	if o.ActivationMode == "" {
		o.ActivationMode = ActivationOutput
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryBaseDelay == 0 {
		o.RetryBaseDelay = 5 * time.Second
	}
	if o.GracefulTimeout == 0 {
		o.GracefulTimeout = 5 * time.Second
	}
	if o.RestartSettleDelay == 0 {
		o.RestartSettleDelay = time.Second
	}
	if o.MetricsInterval == 0 {
		o.MetricsInterval = 5 * time.Second
	}
	if o.OutputDir == "" {
		o.OutputDir = "/var/lib/camfleet/hls"
	}
}

// Supervisor owns the session registry and the transcoder processes.
type Supervisor struct {
	opts      Options
	logger    *slog.Logger
	writeBack *WriteBack

	mu       sync.Mutex
	sessions map[string]*session

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	watchers sync.WaitGroup
}

// NewSupervisor creates a supervisor with an empty registry.
func NewSupervisor(opts Options) *Supervisor {
	opts.applyDefaults()
	logger := logging.GetLogger("streams")
	return &Supervisor{
		opts:      opts,
		logger:    logger,
		writeBack: NewWriteBack(opts.Store, logger, 0),
		sessions:  make(map[string]*session),
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockSession serializes commands for one session id.
func (s *Supervisor) lockSession(id string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// Start validates cfg and launches a transcoder for it. An invalid config is
// rejected without touching the registry. The returned result reflects
// acceptance only; Active is reached asynchronously.
func (s *Supervisor) Start(cfg SessionConfig) Result {
	unlock := s.lockSession(cfg.SessionID)
	defer unlock()

	return s.startLocked(cfg, true)
}

// StartCamera starts the session of a stored camera.
func (s *Supervisor) StartCamera(id string) Result {
	cfg, err := s.storedConfig(id)
	if err != nil {
		return failed(id, s.stateOf(id), err)
	}
	return s.Start(cfg)
}

// Stop terminates a session and removes its segments. Stopping an unknown
// or inactive session succeeds without side effects.
func (s *Supervisor) Stop(id string) Result {
	unlock := s.lockSession(id)
	defer unlock()

	return s.stopLocked(id)
}

// Restart stops the session, waits for the settle delay and starts it again
// with its last configuration. Sessions not in the registry are started from
// the stored camera configuration.
func (s *Supervisor) Restart(id string) Result {
	unlock := s.lockSession(id)
	defer unlock()

	s.mu.Lock()
	sess, exists := s.sessions[id]
	var cfg SessionConfig
	if exists {
		cfg = sess.config
	}
	s.mu.Unlock()

	if !exists {
		stored, err := s.storedConfig(id)
		if err != nil {
			return failed(id, StateInactive, err)
		}
		cfg = stored
	}

	if res := s.stopLocked(id); !res.OK {
		return res
	}

	time.Sleep(s.opts.RestartSettleDelay)

	res := s.startLocked(cfg, true)
	if !res.OK && res.State != StateError {
		s.recordFailure(cfg, res.Err)
		res.State = StateError
	}
	return res
}

// ActiveSessions returns snapshots of every registered session, ordered by id.
func (s *Supervisor) ActiveSessions() []SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SessionStatus, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Status returns the snapshot of one session. Unregistered ids report
// StateInactive and false.
func (s *Supervisor) Status(id string) (SessionStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return SessionStatus{SessionID: id, State: StateInactive}, false
	}
	return sess.status(), true
}

// Counts returns the number of active and failed sessions.
func (s *Supervisor) Counts() (active, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		switch sess.state {
		case StateActive:
			active++
		case StateError:
			failed++
		}
	}
	return active, failed
}

// OutputDir returns the directory receiving playlists and segments.
func (s *Supervisor) OutputDir() string {
	return s.opts.OutputDir
}

// StartEnabled starts every enabled camera of the store concurrently.
func (s *Supervisor) StartEnabled() error {
	if s.opts.Store == nil {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, cam := range s.opts.Store.GetAllCameras() {
		if !cam.Enabled {
			continue
		}
		wg.Add(1)
		go func(cfg SessionConfig) {
			defer wg.Done()
			if res := s.Start(cfg); !res.OK && !HasCode(res.Err, ErrCodeAlreadyActive) {
				mu.Lock()
				errs = append(errs, res.Err)
				mu.Unlock()
			}
		}(cam.SessionConfig())
	}
	wg.Wait()
	return errors.Join(errs...)
}

// StopAll stops every session concurrently and waits for watchers to exit.
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if res := s.Stop(id); !res.OK {
				mu.Lock()
				errs = append(errs, res.Err)
				mu.Unlock()
			}
		}(id)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		s.watchers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}

// Close stops all sessions and flushes pending persistence writes.
func (s *Supervisor) Close(ctx context.Context) error {
	err := s.StopAll(ctx)
	s.writeBack.Close()
	return err
}

func (s *Supervisor) storedConfig(id string) (SessionConfig, error) {
	if s.opts.Store == nil {
		return SessionConfig{}, NewStreamError(ErrCodeCameraNotFound, "no camera store configured", nil)
	}
	cam, ok := s.opts.Store.GetCamera(id)
	if !ok {
		return SessionConfig{}, NewStreamError(ErrCodeCameraNotFound, "camera "+id+" not found", nil)
	}
	return cam.SessionConfig(), nil
}

func (s *Supervisor) stateOf(id string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess.state
	}
	return StateInactive
}

// publish sends ev to the event bus. Callers hold s.mu so that events of one
// session leave in transition order.
func (s *Supervisor) publish(ev events.Event) {
	if s.opts.Events != nil {
		s.opts.Events.Publish(ev)
	}
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

package streams

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/smazurov/camfleet/internal/events"
	"github.com/smazurov/camfleet/internal/ffmpeg"
	"github.com/smazurov/camfleet/internal/logging"
	"github.com/smazurov/camfleet/internal/metrics"
	"github.com/smazurov/camfleet/internal/process"
)

// startLocked registers a Starting attempt and spawns its process. Caller
// holds the per-id lock. explicit is false for automatic retries.
func (s *Supervisor) startLocked(cfg SessionConfig, explicit bool) Result {
	id := cfg.SessionID
	if err := cfg.Validate(); err != nil {
		return failed(id, s.stateOf(id), err)
	}
	profile, _ := ResolveQuality(cfg.Quality)

	s.mu.Lock()
	sess, exists := s.sessions[id]
	if exists {
		switch sess.state {
		case StateStarting, StateActive, StateStopping:
			state := sess.state
			s.mu.Unlock()
			return failed(id, state, NewStreamError(ErrCodeAlreadyActive,
				fmt.Sprintf("session %s is %s", id, state), nil))
		}
	} else {
		sess = &session{id: id}
		s.sessions[id] = sess
	}

	if sess.retryTimer != nil {
		sess.retryTimer.Stop()
		sess.retryTimer = nil
	}
	sess.config = cfg
	sess.profile = profile
	sess.outputKey = id
	sess.explicit = explicit
	sess.proc = nil
	sess.startedAt = time.Time{}
	sess.currentFPS = nil
	sess.currentBandwidth = nil
	sess.generation++
	gen := sess.generation
	s.transition(sess, StateStarting, events.ReasonStarting, nil, nil, false)
	s.mu.Unlock()

	proc, sourceURI, err := s.spawn(cfg, profile, sess.outputKey, gen)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess.sourceURI = sourceURI
	if err != nil {
		s.failLocked(sess, err, nil)
		return failed(id, StateError, err)
	}

	sess.proc = proc
	sess.startedAt = time.Now()
	s.writeBack.SaveStatus(sess.status())

	s.watchers.Add(1)
	go s.watch(sess, proc, gen)

	return ok(id, StateStarting)
}

// Command returns the transcoder invocation a start of cfg would run,
// without spawning anything.
func (s *Supervisor) Command(cfg SessionConfig) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	profile, _ := ResolveQuality(cfg.Quality)

	var sourceURI string
	if cfg.Host != "" {
		uri, err := BuildSourceURI(cfg)
		if err != nil {
			return nil, err
		}
		sourceURI = uri
	}
	return s.buildCommand(cfg, sourceURI, profile, cfg.SessionID)
}

// spawn builds the command line and starts the transcoder. It runs without
// s.mu; the per-id lock keeps the session entry stable.
func (s *Supervisor) spawn(cfg SessionConfig, profile QualityProfile, outputKey string, gen uint64) (*process.Process, string, error) {
	var sourceURI string
	if cfg.Host != "" {
		uri, err := BuildSourceURI(cfg)
		if err != nil {
			return nil, "", err
		}
		sourceURI = uri
	}

	args, err := s.buildCommand(cfg, sourceURI, profile, outputKey)
	if err != nil {
		return nil, sourceURI, NewStreamError(ErrCodeSpawnFailure, "failed to build transcoder command", err)
	}

	if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
		return nil, sourceURI, NewStreamError(ErrCodeSpawnFailure, "failed to create output directory", err)
	}
	// Leftovers of a previous run would be served as if they were live.
	if _, err := RemoveSegments(s.opts.OutputDir, outputKey); err != nil {
		s.logger.Warn("Failed to remove stale segments", "session_id", cfg.SessionID, "error", err)
	}

	opts := []process.Option{
		process.WithLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseOutputLevel),
		process.WithOutputHandler(&outputHandler{supervisor: s, sessionID: cfg.SessionID, generation: gen}),
		process.WithGracefulTimeout(s.opts.GracefulTimeout),
	}

	mode := s.opts.ActivationMode
	if mode == ActivationOutput {
		opts = append(opts, process.WithReadyMatcher(ffmpeg.InputOpened))
	}

	proc := process.New(cfg.SessionID, args, s.logger, opts...)

	stopWatch := func() {}
	if mode == ActivationSegment {
		stop, err := watchPlaylist(s.opts.OutputDir, outputKey, proc, s.logger)
		if err != nil {
			s.logger.Warn("Playlist watch unavailable, activating on transcoder output",
				"session_id", cfg.SessionID, "error", err)
			proc = process.New(cfg.SessionID, args, s.logger,
				append(opts, process.WithReadyMatcher(ffmpeg.InputOpened))...)
		} else {
			stopWatch = stop
		}
	}

	s.logger.Info("Starting transcoder", "session_id", cfg.SessionID,
		"quality", profile.Name, "command", ffmpeg.CommandString(args))

	if err := proc.Start(); err != nil {
		stopWatch()
		return nil, sourceURI, NewStreamError(ErrCodeSpawnFailure, "failed to spawn transcoder", err)
	}
	return proc, sourceURI, nil
}

func (s *Supervisor) buildCommand(cfg SessionConfig, sourceURI string, profile QualityProfile, outputKey string) ([]string, error) {
	if s.opts.CommandBuilder != nil {
		return s.opts.CommandBuilder(cfg, sourceURI, profile, s.opts.OutputDir, outputKey)
	}
	if cfg.CustomCommand != "" {
		return customCommand(cfg.CustomCommand, sourceURI, s.opts.OutputDir, outputKey)
	}

	opts, err := ffmpeg.ParseOptions(cfg.Options)
	if err != nil {
		return nil, err
	}
	return ffmpeg.BuildHLSArgs(&ffmpeg.HLSParams{
		SourceURI:      sourceURI,
		RTSPTransport:  cfg.Transport,
		Options:        opts,
		Width:          profile.Width,
		Height:         profile.Height,
		FPS:            profile.FPS,
		BitrateKbps:    profile.BitrateKbps,
		DisableAudio:   cfg.DisableAudio,
		OutputDir:      s.opts.OutputDir,
		OutputKey:      outputKey,
		SegmentSeconds: s.opts.SegmentSeconds,
		PlaylistSize:   s.opts.PlaylistSize,
	}), nil
}

// watch waits for the three completion signals of one attempt.
func (s *Supervisor) watch(sess *session, proc *process.Process, gen uint64) {
	defer s.watchers.Done()

	select {
	case <-proc.Ready():
		s.onReady(sess, gen)
		<-proc.Done()
	case <-proc.Done():
	}
	s.onExit(sess, proc, gen)
}

func (s *Supervisor) onReady(sess *session, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.generation != gen || sess.state != StateStarting {
		return
	}
	if sess.explicit {
		sess.retryCount = 0
	}
	sess.lastError = nil
	s.transition(sess, StateActive, events.ReasonStarted, nil, nil, false)
	s.logger.Info("Session active", "session_id", sess.id)
}

func (s *Supervisor) onExit(sess *session, proc *process.Process, gen uint64) {
	unlock := s.lockSession(sess.id)
	defer unlock()

	s.mu.Lock()
	if s.sessions[sess.id] != sess || sess.generation != gen {
		s.mu.Unlock()
		return
	}

	code := proc.ExitCode()
	if code == 0 {
		key := sess.outputKey
		sess.proc = nil
		delete(s.sessions, sess.id)
		s.transition(sess, StateInactive, events.ReasonEnded, &code, nil, false)
		s.mu.Unlock()

		s.logger.Info("Transcoder exited cleanly", "session_id", sess.id)
		metrics.DeleteSessionMetrics(sess.id)
		s.cleanup(sess.id, key)
		return
	}
	defer s.mu.Unlock()

	err := NewStreamError(ErrCodeAbnormalExit, "transcoder exited with code "+strconv.Itoa(code), proc.Err())
	s.failLocked(sess, err, &code)
}

// failLocked moves a session to Error and evaluates the restart policy.
// Caller holds s.mu.
func (s *Supervisor) failLocked(sess *session, err error, exitCode *int) {
	sess.lastError = err
	sess.proc = nil

	terminal := sess.retryCount >= s.opts.MaxRetries
	if !terminal {
		sess.retryCount++
	}
	s.transition(sess, StateError, events.ReasonError, exitCode, err, terminal)

	s.logger.Warn("Session failed", "session_id", sess.id, "error", err,
		"retry_count", sess.retryCount, "terminal", terminal)
	s.writeBack.Append(Record{
		Level:     "error",
		Source:    "supervisor",
		SessionID: sess.id,
		Message:   err.Error(),
		Fields:    map[string]string{"retry_count": strconv.Itoa(sess.retryCount), "terminal": strconv.FormatBool(terminal)},
	})
	if terminal {
		return
	}

	delay := s.opts.RetryBaseDelay * time.Duration(sess.retryCount)
	gen := sess.generation
	sess.retryTimer = time.AfterFunc(delay, func() { s.retry(sess, gen) })
	metrics.IncSessionRestarts(sess.id)
}

// recordFailure puts a session into Error when a command failed before an
// attempt was registered.
func (s *Supervisor) recordFailure(cfg SessionConfig, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[cfg.SessionID]
	if !ok {
		sess = &session{id: cfg.SessionID, config: cfg, outputKey: cfg.SessionID, state: StateInactive}
		s.sessions[cfg.SessionID] = sess
	}
	if sess.state == StateError {
		return
	}
	sess.generation++
	sess.lastError = err
	s.transition(sess, StateError, events.ReasonError, nil, err, true)
}

func (s *Supervisor) retry(sess *session, gen uint64) {
	unlock := s.lockSession(sess.id)
	defer unlock()

	s.mu.Lock()
	if s.sessions[sess.id] != sess || sess.generation != gen || sess.state != StateError {
		s.mu.Unlock()
		return
	}
	sess.retryTimer = nil
	cfg := sess.config
	attempt := sess.retryCount
	s.mu.Unlock()

	s.logger.Info("Restarting session", "session_id", sess.id, "attempt", attempt)
	s.startLocked(cfg, false)
}

// stopLocked terminates the session's process. Caller holds the per-id lock.
func (s *Supervisor) stopLocked(id string) Result {
	s.mu.Lock()
	sess, exists := s.sessions[id]
	if !exists {
		s.mu.Unlock()
		s.logger.Debug("Stop for unknown session", "session_id", id, "code", ErrCodeRegistryInconsistency)
		return Result{SessionID: id, OK: true, State: StateInactive, Noop: true}
	}

	if sess.retryTimer != nil {
		sess.retryTimer.Stop()
		sess.retryTimer = nil
	}
	sess.generation++
	proc := sess.proc
	key := sess.outputKey
	s.transition(sess, StateStopping, events.ReasonStopping, nil, nil, false)
	s.mu.Unlock()

	var exitCode *int
	if proc != nil {
		code := proc.Stop()
		exitCode = &code
		s.logger.Info("Transcoder stopped", "session_id", id, "exit_code", code)
	}

	s.mu.Lock()
	sess.proc = nil
	delete(s.sessions, id)
	s.transition(sess, StateInactive, events.ReasonStopped, exitCode, nil, false)
	s.mu.Unlock()

	metrics.DeleteSessionMetrics(id)
	s.cleanup(id, key)
	return ok(id, StateInactive)
}

func (s *Supervisor) cleanup(id, key string) {
	removed, err := RemoveSegments(s.opts.OutputDir, key)
	if err != nil {
		s.logger.Warn("Segment cleanup incomplete", "session_id", id, "error", err)
		return
	}
	if removed > 0 {
		s.logger.Debug("Removed segments", "session_id", id, "count", removed)
	}
}

// transition changes state and publishes the event. Caller holds s.mu.
func (s *Supervisor) transition(sess *session, next State, reason string, exitCode *int, err error, terminal bool) {
	old := sess.state
	if old == "" {
		old = StateInactive
	}
	sess.state = next
	sess.updatedAt = time.Now()

	ev := events.SessionStateChangedEvent{
		SessionID:  sess.id,
		OldState:   string(old),
		NewState:   string(next),
		Reason:     reason,
		OutputKey:  sess.outputKey,
		ExitCode:   exitCode,
		RetryCount: sess.retryCount,
		Terminal:   terminal,
		Timestamp:  timestamp(sess.updatedAt),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.publish(ev)

	if next != StateInactive {
		metrics.SetSessionState(sess.id, string(next))
	}
	s.writeBack.SaveStatus(sess.status())
}

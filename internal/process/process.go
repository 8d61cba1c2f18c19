package process

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/camfleet/internal/logging"
)

// OutputHandler receives output chunks from the subprocess.
type OutputHandler interface {
	HandleChunk(source, chunk string)
}

// LogParser parses an output chunk and returns the log level and message.
type LogParser func(chunk string) (level, msg string)

// ReadyMatcher reports whether an output chunk confirms the subprocess is up.
type ReadyMatcher func(chunk string) bool

// ErrAlreadyStarted is returned when Start is called twice on the same handle.
var ErrAlreadyStarted = errors.New("process already started")

const maxChunkSize = 1024 * 1024

// Process manages the lifecycle of one subprocess invocation.
type Process struct {
	id              string
	args            []string
	cmd             *exec.Cmd
	logger          logging.Logger
	processLogger   logging.Logger // logger for process output (nil = use logger)
	logParser       LogParser
	outputHandler   OutputHandler
	readyMatcher    ReadyMatcher
	gracefulTimeout time.Duration // timeout for graceful shutdown before force kill
	killTimeout     time.Duration // timeout after SIGKILL before giving up

	mu       sync.Mutex
	started  bool
	ready    chan struct{}
	readyOne sync.Once
	done     chan struct{}
	exitCode int
	exitErr  error
}

// Option configures a Process.
type Option func(*Process)

// WithOutputHandler forwards every output chunk to handler.
func WithOutputHandler(handler OutputHandler) Option {
	return func(p *Process) { p.outputHandler = handler }
}

// WithLogParser sets the logger and parser used for subprocess output.
func WithLogParser(logger logging.Logger, parser LogParser) Option {
	return func(p *Process) {
		p.processLogger = logger
		p.logParser = parser
	}
}

// WithReadyMatcher sets the matcher that closes Ready.
func WithReadyMatcher(matcher ReadyMatcher) Option {
	return func(p *Process) { p.readyMatcher = matcher }
}

// WithGracefulTimeout overrides the SIGINT grace period (default 5s).
func WithGracefulTimeout(d time.Duration) Option {
	return func(p *Process) {
		if d > 0 {
			p.gracefulTimeout = d
		}
	}
}

// New creates a process handle. Nothing is spawned until Start.
func New(id string, args []string, logger logging.Logger, opts ...Option) *Process {
	p := &Process{
		id:              id,
		args:            args,
		logger:          logger,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
		ready:           make(chan struct{}),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the identifier the process was created with.
func (p *Process) ID() string {
	return p.id
}

// Args returns the argument vector, program first.
func (p *Process) Args() []string {
	return p.args
}

// PID returns the OS process id, or 0 before a successful Start.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Ready is closed once the subprocess confirmed it is up.
func (p *Process) Ready() <-chan struct{} {
	return p.ready
}

// Done is closed after the subprocess exited and its output was drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code. Only meaningful after Done is closed.
// A process terminated by a signal reports 128+signal.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Err returns the wait error, nil for a clean exit.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// MarkReady closes Ready on behalf of an external observer.
func (p *Process) MarkReady() {
	p.readyOne.Do(func() { close(p.ready) })
}

// Start spawns the subprocess. It returns as soon as the OS accepted it.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	if len(p.args) == 0 {
		return fmt.Errorf("empty command")
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "id", p.id, "error", err, "program", p.args[0])
		return err
	}

	p.cmd = cmd
	p.started = true
	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid)

	var outputs sync.WaitGroup
	outputs.Add(2)
	go func() {
		defer outputs.Done()
		p.streamOutput(stdout, "stdout")
	}()
	go func() {
		defer outputs.Done()
		p.streamOutput(stderr, "stderr")
	}()

	go func() {
		// Pipes must be drained before Wait closes them.
		outputs.Wait()
		waitErr := cmd.Wait()

		p.mu.Lock()
		p.exitCode = exitCodeFromError(waitErr)
		p.exitErr = waitErr
		p.mu.Unlock()

		p.logger.Info("Process exited", "id", p.id, "exit_code", p.exitCode)
		close(p.done)
	}()

	return nil
}

// Stop sends SIGINT and waits for the subprocess to exit, force-killing the
// process group after the graceful timeout. Returns the exit code.
// Calling Stop on a process that never started returns 0.
func (p *Process) Stop() int {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return 0
	}

	select {
	case <-p.done:
		return p.ExitCode()
	default:
	}

	p.sendStopSignal()
	return p.waitForExit(p.gracefulTimeout)
}

// sendStopSignal sends SIGINT to the subprocess without waiting.
func (p *Process) sendStopSignal() {
	pid := p.PID()
	if pid == 0 {
		return
	}
	p.logger.Info("Sending SIGINT to process", "id", p.id, "pid", pid)
	if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGINT", "id", p.id, "error", err)
	}
}

// waitForExit waits for the process to exit with a timeout, force-killing if needed.
func (p *Process) waitForExit(timeout time.Duration) int {
	select {
	case <-p.done:
		return p.ExitCode()
	case <-time.After(timeout):
	}

	pid := p.PID()
	p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", timeout)
	// Negative pid targets the whole group so children holding our pipes die too.
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Error("Failed to kill process group", "id", p.id, "error", err)
	}

	select {
	case <-p.done:
		return p.ExitCode()
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal", "id", p.id)
		return 137
	}
}

// exitCodeFromError extracts the exit code from a wait error.
// Returns 0 for nil, 128+signal for signalled exits, the exit code for
// other ExitErrors and 1 for anything else.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}

// streamOutput scans a subprocess stream chunk by chunk.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxChunkSize)
	scanner.Split(scanChunks)

	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		chunk := strings.TrimSpace(scanner.Text())
		if chunk == "" {
			continue
		}

		if p.readyMatcher != nil && p.readyMatcher(chunk) {
			p.MarkReady()
		}

		if p.outputHandler != nil {
			p.outputHandler.HandleChunk(source, chunk)
		}

		level, msg := "info", chunk
		if p.logParser != nil {
			level, msg = p.logParser(chunk)
		}

		switch level {
		case "fatal", "panic", "error":
			logger.Error(msg)
		case "warning":
			logger.Warn(msg)
		case "debug", "trace", "verbose":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "id", p.id, "source", source, "error", err)
	}
}

// scanChunks is a bufio.SplitFunc that breaks on '\r' as well as '\n'.
func scanChunks(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// ParseCommand splits a command string into arguments.
// Handles quoted strings and basic escaping.
func ParseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	runes := []rune(strings.TrimSpace(command))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}

	return args, nil
}

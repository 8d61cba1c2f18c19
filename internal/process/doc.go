// Package process provides lifecycle management for a single supervised
// subprocess such as an ffmpeg transcoder.
//
// A Process is a one-shot handle: it is started once, observed through
// three signals and stopped once.
//   - Start returns a spawn error when the binary cannot be executed
//   - Ready is closed when the configured ReadyMatcher accepts an output chunk
//     (or MarkReady is called by an external observer)
//   - Done is closed when the subprocess exits; ExitCode and Err describe how
//
// Stop sends SIGINT and escalates to SIGKILL on the whole process group if
// the subprocess has not exited within the graceful timeout.
//
// Output on stdout and stderr is scanned incrementally. Chunks are split on
// both '\r' and '\n' so carriage-return progress lines (ffmpeg stats) are
// delivered as they are written instead of when a newline finally arrives.
//
// Example:
//
//	p := process.New("cam1", args, logger,
//	    process.WithReadyMatcher(ffmpeg.InputOpened),
//	    process.WithOutputHandler(handler),
//	)
//	if err := p.Start(); err != nil {
//	    return err
//	}
//	select {
//	case <-p.Ready():
//	    // running
//	case <-p.Done():
//	    log.Printf("exited early with %d", p.ExitCode())
//	}
//	defer p.Stop()
package process

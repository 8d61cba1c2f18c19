// Package streams supervises one transcoder process per camera session.
//
// A Supervisor owns the session registry. Start, Stop and Restart are
// serialized per session id and return a Result synchronously; the
// Starting to Active transition and exit handling happen on a watcher
// goroutine per attempt:
//
//	inactive -> starting -> active -> stopping -> inactive
//	                 \         \
//	                  +---------+--> error -> starting (retry n after n*base)
//
// Failed sessions are restarted up to MaxRetries times. Every transition is
// published as an events.SessionStateChangedEvent and persisted through the
// Store without blocking the state machine.
//
// Playlists and segments live in Options.OutputDir, named after the session's
// output key. Stopping a session removes exactly those files.
package streams

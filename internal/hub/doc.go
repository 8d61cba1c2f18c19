// Package hub fans out live session and health events to connected
// clients.
//
// A Registry tracks authenticated connections, their channel
// subscriptions and the per-stream rooms they joined. Channels carry
// broadcast categories gated by role (see CanSubscribe); rooms group the
// viewers of one stream and are only entered with a join_stream message.
// The Bridge subscribes to the in-process event bus and turns session
// transitions, metrics, health summaries and alerts into wire events.
//
// Transport is abstract. The websocket Handler provides the production
// implementation; tests use in-memory transports.
package hub

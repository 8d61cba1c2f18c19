// Package health watches cameras, sessions and host resources.
//
// A Monitor runs three independent loops: camera reachability probes,
// session liveness checks against the playlist on disk, and threshold
// evaluation over CPU, memory, disk and session failure counts. Each
// check stores a Snapshot per resource; threshold alerts pass a
// per-key dedupe window before they are published.
package health

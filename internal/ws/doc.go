// Package ws streams grading progress to WebSocket clients.
//
// Hub sits between the coordinator and the status store: passed to
// dispatch.WithObserver, it records every event in the store and pushes the
// new run state to subscribers. Run flushes coalesced result progress and
// keeps connections alive with pings. The coordinator mounts the hub at
// /ws/progress.
//
// Frames are {"event": ..., "data": <GET /api/v1/run schema>} with event one
// of started, phase, progress or finished. A client connecting before any
// run receives {"event": "idle"}.
package ws

// Package chat manages websocket chat sessions: the per-session history log,
// the live-connection registry, and the lifecycle of each inbound request.
//
// Ownership model:
//   - Manager owns the History and the Registry and reacts to artifact cache
//     notifications by folding transcoded artifacts into the owning session.
//   - Router/Server are thin transport wrappers; applications embedding the
//     manager can mount Router.Handler on their own mux instead.
//
// Delivery discipline: a session's history slice is private, and history
// notifications dispatch only the newest bot event to the owning connection.
// The full filtered history goes out exactly once, at connect time.
package chat

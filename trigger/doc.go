// Package trigger decides when the full variant's prefetch starts.
//
// Three triggers race and the first one wins:
//
//   - Time: fires Delay after Arm, plus SlowNetworkExtra on constrained
//     connections.
//   - Level: once the reported level reaches LevelThreshold a request is
//     queued and runs at the next safe moment: immediately while the
//     application is hidden, on a reported idle window of at least
//     MinIdleWindow, or unconditionally after QueueDeadline.
//   - Completion: fires immediately.
//
// An Engine fires its callback at most once.
package trigger

// Package capture sequences visibility, cache lookup and frame extraction
// into one thumbnail per mounted surface.
//
// A Session is the orchestrator for one surface. Its states are
//
//	Unstarted -> WaitingForVisibility -> CheckingCache -> Done
//	                                         |
//	                                         +-> Extracting -> Done | DoneNoThumbnail
//
// and an externally supplied poster skips straight to Done. Every session
// owns an eventloop.Loop; gate callbacks, extractor events and timers all run
// there, so session state needs no locks. Readers use Snapshot.
//
// Failures never escape a session: they end in DoneNoThumbnail and the view
// falls back to the placeholder. Unmount tears everything down synchronously
// and any continuation arriving afterwards is a no-op.
//
// Manager keeps the sessions of a process, keyed by a generated surface id
// that doubles as the visibility target.
package capture

// Package extractor drives a media.Element through load, seek and capture to
// produce a single thumbnail payload.
//
// A Run is a state machine owned by one eventloop.Loop:
//
//	Idle -> MetadataLoading -> Seeking -> FrameReady -> Captured
//	                  \            \           \
//	                   +------------+-----------+--> TimedOut | Errored
//
// Element events, the seek timeout, the play-burst timer and the global
// deadline are all posted to the loop and fed through one dispatch function.
// An input is ignored unless the run is in the state that accepts it, so
// whichever of a racing event and timer arrives first wins.
//
// A frame with zero dimensions is retried once after a short playback burst.
// Every terminal path stops the timers, removes the listener and closes the
// element.
package extractor

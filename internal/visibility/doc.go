// Package visibility decides when a mounted surface is close enough to the
// viewport for thumbnail work to start.
//
// A Viewport collects intersection entries reported for each target (the
// page posts them over HTTP; thumbctl synthesises them). A Gate observes one
// target and fires exactly once, on the first entry inside the configured
// margin or above the intersection threshold, then disconnects itself.
// A surface that never comes into view never fires its gate; that is a normal
// outcome, not an error.
package visibility

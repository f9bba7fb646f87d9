// Command lazythumb serves lazily generated video thumbnails over HTTP.
//
// A client mounts a surface per video reference, streams intersection
// reports for it as the page scrolls, and reads back a view model: the
// placeholder with a play overlay until a thumbnail resolves, then the
// thumbnail. A thumbnail comes from the external poster when one is given,
// otherwise from the shared cache, otherwise from a frame extracted near the
// start of the video once the surface first becomes visible.
//
// # Application Lifecycle
//
//  1. Configuration Loading: Reads .env and environment variables
//  2. Cache Initialization: SQLite file, MinIO bucket or in-memory map
//  3. Decoder Initialization: FFmpeg processes or a headless Chrome
//  4. Component Initialization:
//     - Surface Manager: One event loop per mounted surface
//     - Metrics Collector: Samples cache usage and active surfaces
//  5. HTTP Server Setup: Routes, request id, metrics and logging middleware
//  6. Graceful Shutdown: Handles SIGINT/SIGTERM, unmounts surfaces, closes
//     the decoder and the cache
//
// See package startup for the configuration variables.
package main

// Package media provides decoding contexts for remote video sources and the
// encoders that turn a decoded frame into a thumbnail payload.
//
// An Element mirrors a hidden browser video element: it is loaded with a
// source URL, reports LoadedMetadata, Seeked and Error events to registered
// listeners, and exposes the current frame. Two backends exist:
//   - FFmpegFactory: ffprobe/ffmpeg processes, bounded by a shared semaphore
//   - BrowserFactory: a <video> element in a headless Chrome page (go-rod)
//
// Encoders produce JPEG data URIs through imaging or, when available, libvips.
package media

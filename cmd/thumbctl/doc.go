// Command thumbctl generates and inspects video thumbnails from the command
// line, sharing the server's cache and decoder configuration.
//
// Usage:
//
//	thumbctl generate [--poster URL] [--parallel N] URL...
//	thumbctl cache get URL [--output FILE]
//	thumbctl cache rm URL...
//	thumbctl cache stats
//
// generate runs each URL through the same capture path as a mounted surface
// that is immediately visible: external poster, then cache, then extraction.
// It prints one line per URL:
//
//	<url>	<outcome>	<bytes>
//
// where outcome is poster, cache, generated or no_thumbnail. The exit status
// is non-zero when any URL ended without a thumbnail.
//
// Configuration is read from the environment like the server (CACHE_BACKEND,
// CACHE_DIR, MEDIA_BACKEND, EXTRACTOR_*, ...). --backend and --cache-dir
// override the cache settings.
package main

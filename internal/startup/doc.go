// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration is read from the environment (and an optional ./.env file)
// via [LoadConfig]. The supported variables are:
//
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable metrics server (default: true)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//   - STATS_INTERVAL: Cache gauge refresh interval (default: 1m)
//   - CACHE_BACKEND: sqlite, minio or memory (default: sqlite)
//   - CACHE_DIR: Directory holding thumbnails.db (default: /cache)
//   - CACHE_QUOTA_BYTES: Cache byte budget, 0 for unlimited (default: 5 MiB)
//   - MINIO_ENDPOINT, MINIO_ACCESS_KEY, MINIO_SECRET_KEY, MINIO_BUCKET, MINIO_SECURE
//   - MEDIA_BACKEND: ffmpeg or browser (default: ffmpeg)
//   - BROWSER_URL: DevTools URL of a running Chrome; empty launches one
//   - ENCODER: imaging or vips (default: imaging)
//   - EXTRACTOR_WORKERS: Concurrent decoder processes (default: sized from CPUs)
//   - EXTRACTOR_DEADLINE, EXTRACTOR_SEEK_TIMEOUT, EXTRACTOR_SEEK_FRACTION,
//     EXTRACTOR_SEEK_CAP, EXTRACTOR_DEFAULT_SEEK, EXTRACTOR_PLAY_BURST
//   - VISIBILITY_MARGIN: Pixels around the viewport that count as visible (default: 200)
//   - VISIBILITY_THRESHOLD: Minimum intersection ratio (default: 0.01)
//   - ALLOWED_SOURCE_HOSTS: Comma separated hosts media and poster URLs may
//     use; ".example.com" also admits subdomains (default: any http(s) host)
//
// [Parse] does the same without logging or touching the filesystem and is
// what the command line tool uses.
//
// # Backends
//
// [OpenCache] and [OpenDecoder] build the cache store and media factory
// selected by the configuration.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo]:
//   - Version: Application version
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
//   - GoVersion: Go compiler version
//
// # Example Usage
//
//	config, err := startup.LoadConfig()
//	if err != nil {
//	    startup.LogFatal("Configuration error: %v", err)
//	}
//
//	store, err := startup.OpenCache(ctx, config)
//	...
//	startup.LogServerStarted(startup.ServerConfig{
//	    Port:            config.Port,
//	    MetricsPort:     config.MetricsPort,
//	    MetricsEnabled:  config.MetricsEnabled,
//	    StartupDuration: time.Since(startTime),
//	})
//
//	// On shutdown...
//	startup.LogShutdownInitiated("SIGTERM")
//	startup.LogShutdownComplete()
package startup

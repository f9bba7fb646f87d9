package media

import (
	"bytes"
	"fmt"
	"image"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"

	"lazythumb/internal/logging"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// vipsLogSettings maps the application log level onto libvips, returning the
// minimum libvips level and a handler routing messages into our logger.
func vipsLogSettings(appLevel logging.LogLevel) (vips.LogLevel, func(string, vips.LogLevel, string)) {
	route := func(minLevel vips.LogLevel) func(string, vips.LogLevel, string) {
		return func(domain string, level vips.LogLevel, msg string) {
			if level < minLevel {
				return
			}
			switch level {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			default:
				logging.Debug("[%s] %s", domain, msg)
			}
		}
	}

	switch appLevel {
	case logging.LevelDebug:
		return vips.LogLevelInfo, route(vips.LogLevelInfo)
	case logging.LevelInfo:
		return vips.LogLevelWarning, route(vips.LogLevelWarning)
	case logging.LevelWarn:
		return vips.LogLevelError, route(vips.LogLevelError)
	default:
		return vips.LogLevelCritical, route(vips.LogLevelCritical)
	}
}

// InitVips starts libvips once. Later calls are no-ops.
func InitVips() (err error) {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	level, handler := vipsLogSettings(logging.GetLevel())
	vips.LoggingSettings(handler, level)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("libvips startup: %v", r)
		}
	}()

	// Thumbnails are small; keep the operation cache modest.
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// ShutdownVips releases libvips resources.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized.
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// VipsEncoder resizes and encodes with libvips. Frames are handed over as
// PNG, and any libvips failure falls back to Fallback.
type VipsEncoder struct {
	Quality  int
	MaxWidth int
	Fallback Encoder
}

// Encode implements Encoder.
func (e *VipsEncoder) Encode(img image.Image) (string, error) {
	if IsEmpty(img) {
		return "", ErrEmptyImage
	}
	if !IsVipsAvailable() {
		return e.Fallback.Encode(img)
	}

	out, err := e.encode(img)
	if err != nil {
		logging.Debug("vips encode failed, using fallback: %v", err)
		return e.Fallback.Encode(img)
	}
	return DataURI(out), nil
}

func (e *VipsEncoder) encode(img image.Image) ([]byte, error) {
	var png bytes.Buffer
	if err := imaging.Encode(&png, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("png handoff: %w", err)
	}

	ref, err := vips.NewImageFromBuffer(png.Bytes())
	if err != nil {
		return nil, fmt.Errorf("vips failed to load frame: %w", err)
	}
	defer ref.Close()

	if w, h := ref.Width(), ref.Height(); e.MaxWidth > 0 && w > e.MaxWidth {
		if err := ref.Thumbnail(e.MaxWidth, h*e.MaxWidth/w, vips.InterestingNone); err != nil {
			return nil, fmt.Errorf("vips resize failed: %w", err)
		}
	}

	quality := e.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}
	out, _, err := ref.ExportJpeg(&vips.JpegExportParams{
		Quality:        quality,
		StripMetadata:  true,
		OptimizeCoding: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}
	return out, nil
}

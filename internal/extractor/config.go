package extractor

import "time"

// Config bounds a run. Zero fields take the defaults below.
type Config struct {
	// Deadline is the hard upper bound for the whole run.
	Deadline time.Duration
	// SeekTimeout is how long to wait for Seeked before capturing whatever
	// frame is decoded.
	SeekTimeout time.Duration
	// SeekFraction of the duration is the seek target, capped at SeekCap.
	SeekFraction float64
	SeekCap      time.Duration
	// DefaultSeek is used when the duration is unknown.
	DefaultSeek time.Duration
	// PlayBurst is how long to play before retrying an empty capture.
	PlayBurst time.Duration
}

const (
	DefaultDeadline     = 10 * time.Second
	DefaultSeekTimeout  = 2 * time.Second
	DefaultSeekFraction = 0.1
	DefaultSeekCap      = time.Second
	DefaultDefaultSeek  = 500 * time.Millisecond
	DefaultPlayBurst    = 100 * time.Millisecond

	// maxAttempts is one capture plus the single retry.
	maxAttempts = 2
)

// DefaultConfig returns the default bounds.
func DefaultConfig() Config {
	return Config{
		Deadline:     DefaultDeadline,
		SeekTimeout:  DefaultSeekTimeout,
		SeekFraction: DefaultSeekFraction,
		SeekCap:      DefaultSeekCap,
		DefaultSeek:  DefaultDefaultSeek,
		PlayBurst:    DefaultPlayBurst,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Deadline <= 0 {
		c.Deadline = d.Deadline
	}
	if c.SeekTimeout <= 0 {
		c.SeekTimeout = d.SeekTimeout
	}
	if c.SeekFraction <= 0 || c.SeekFraction > 1 {
		c.SeekFraction = d.SeekFraction
	}
	if c.SeekCap <= 0 {
		c.SeekCap = d.SeekCap
	}
	if c.DefaultSeek <= 0 {
		c.DefaultSeek = d.DefaultSeek
	}
	if c.PlayBurst <= 0 {
		c.PlayBurst = d.PlayBurst
	}
	return c
}

// SeekTarget returns where to seek for a source of the given duration:
// SeekFraction of it, at most SeekCap, or DefaultSeek when the duration is
// unknown (zero or negative).
func (c Config) SeekTarget(duration time.Duration) time.Duration {
	if duration <= 0 {
		return c.DefaultSeek
	}
	t := time.Duration(float64(duration) * c.SeekFraction)
	if t > c.SeekCap {
		return c.SeekCap
	}
	return t
}

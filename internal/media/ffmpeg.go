package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"lazythumb/internal/logging"
	"lazythumb/internal/metrics"
)

const ffmpegBackend = "ffmpeg"

// ErrClosed is returned by Frame after Close.
var ErrClosed = errors.New("media: element closed")

// FFmpegFactory creates elements backed by ffprobe and ffmpeg processes.
// All elements share one semaphore, so at most Workers processes run at once.
type FFmpegFactory struct {
	FFmpegPath  string
	FFprobePath string
	sem         *semaphore.Weighted
}

// NewFFmpegFactory creates a factory allowing workers concurrent processes.
func NewFFmpegFactory(workers int) *FFmpegFactory {
	if workers < 1 {
		workers = 1
	}
	logging.Info("FFmpeg decoder pool: %d workers", workers)
	return &FFmpegFactory{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		sem:         semaphore.NewWeighted(int64(workers)),
	}
}

// NewElement implements Factory. The element's processes are bound to ctx.
func (f *FFmpegFactory) NewElement(ctx context.Context) (Element, error) {
	ctx, cancel := context.WithCancel(ctx)
	return &ffmpegElement{
		factory: f,
		ctx:     ctx,
		cancel:  cancel,
		frame:   emptyFrame(),
	}, nil
}

type ffmpegElement struct {
	factory *FFmpegFactory
	ctx     context.Context
	cancel  context.CancelFunc
	events  Emitter

	mu        sync.Mutex
	src       string
	pos       time.Duration
	playingAt time.Time // zero when paused
	frame     image.Image
	framePos  time.Duration
	decoded   bool
	closed    bool
}

func (e *ffmpegElement) AddListener(fn Listener) func() {
	return e.events.Add(fn)
}

// Load probes the source and emits LoadedMetadata or Error.
func (e *ffmpegElement) Load(src string) {
	e.mu.Lock()
	e.src = src
	e.pos = 0
	e.decoded = false
	e.mu.Unlock()

	go func() {
		d, err := e.factory.probe(e.ctx, src)
		if e.ctx.Err() != nil {
			return
		}
		if err != nil {
			e.events.Emit(Event{Kind: Error, Err: err})
			return
		}
		e.events.Emit(Event{Kind: LoadedMetadata, Duration: d})
	}()
}

// Seek decodes the frame at pos using input seeking and emits Seeked.
func (e *ffmpegElement) Seek(pos time.Duration) {
	e.mu.Lock()
	e.pos = pos
	e.playingAt = time.Time{}
	src := e.src
	e.mu.Unlock()

	go func() {
		img, err := e.factory.decode(e.ctx, "seek", src, pos, true)
		if e.ctx.Err() != nil {
			return
		}
		if err != nil {
			e.events.Emit(Event{Kind: Error, Err: err})
			return
		}

		e.mu.Lock()
		e.frame = img
		e.framePos = pos
		e.decoded = true
		e.mu.Unlock()

		e.events.Emit(Event{Kind: Seeked})
	}()
}

// Play starts the playback clock from the current position.
func (e *ffmpegElement) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playingAt.IsZero() {
		e.playingAt = time.Now()
	}
}

// Pause stops the playback clock. The next Frame decodes at the new position.
func (e *ffmpegElement) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playingAt.IsZero() {
		e.pos += time.Since(e.playingAt)
		e.playingAt = time.Time{}
	}
}

// Frame returns the decoded frame at the current position. After playback
// moved the position, the frame is decoded again with output seeking, which
// is slower but frame accurate.
func (e *ffmpegElement) Frame() (image.Image, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	pos := e.pos
	if !e.playingAt.IsZero() {
		pos += time.Since(e.playingAt)
	}
	if !e.decoded || pos == e.framePos {
		img := e.frame
		e.mu.Unlock()
		return img, nil
	}
	src := e.src
	e.mu.Unlock()

	img, err := e.factory.decode(e.ctx, "frame", src, pos, false)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.frame = img
	e.framePos = pos
	e.mu.Unlock()
	return img, nil
}

// Close kills any running process and drops listeners.
func (e *ffmpegElement) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.events.Close()
	e.cancel()
	return nil
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// probe returns the container duration, or 0 when ffprobe reports none.
// A source without a video stream is an error.
func (f *FFmpegFactory) probe(ctx context.Context, src string) (time.Duration, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer f.sem.Release(1)

	start := time.Now()
	defer func() {
		metrics.DecoderCommandDuration.WithLabelValues(ffmpegBackend, "load").Observe(time.Since(start).Seconds())
	}()

	cmd := exec.CommandContext(ctx, f.FFprobePath, probeArgs(src)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe error: %w - %s", err, stderr.String())
	}

	return parseProbe(stdout.Bytes())
}

// probeArgs passes src through -i so a value starting with '-' is never
// read as an option.
func probeArgs(src string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-i", src,
	}
}

func parseProbe(data []byte) (time.Duration, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("ffprobe output: %w", err)
	}

	hasVideo := false
	for _, s := range out.Streams {
		if s.CodecType == "video" {
			hasVideo = true
			break
		}
	}
	if !hasVideo {
		return 0, errors.New("no video stream")
	}

	secs, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil || secs <= 0 {
		return 0, nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// decode extracts one PNG frame at pos. Input seeking (-ss before -i) jumps
// to the nearest keyframe; output seeking decodes up to pos.
func (f *FFmpegFactory) decode(ctx context.Context, command, src string, pos time.Duration, inputSeek bool) (image.Image, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer f.sem.Release(1)

	start := time.Now()
	defer func() {
		metrics.DecoderCommandDuration.WithLabelValues(ffmpegBackend, command).Observe(time.Since(start).Seconds())
	}()

	cmd := exec.CommandContext(ctx, f.FFmpegPath, ffmpegArgs(src, pos, inputSeek)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, stderr.String())
	}

	// Seeking past the last frame produces no output; that is an empty
	// frame, not a failure.
	if stdout.Len() == 0 {
		logging.Debug("FFmpeg produced no output for %s at %s", src, pos)
		return emptyFrame(), nil
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}

func ffmpegArgs(src string, pos time.Duration, inputSeek bool) []string {
	ts := strconv.FormatFloat(pos.Seconds(), 'f', 3, 64)

	args := []string{"-v", "error", "-nostdin"}
	if inputSeek {
		args = append(args, "-ss", ts, "-i", src)
	} else {
		args = append(args, "-i", src, "-ss", ts)
	}
	return append(args,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
}

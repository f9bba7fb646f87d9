package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"lazythumb/internal/logging"
	"lazythumb/internal/metrics"
)

const browserBackend = "browser"

const (
	// pageTimeout bounds creating and closing a page.
	pageTimeout = 5 * time.Second
	// commandTimeout bounds play, pause and frame grabs.
	commandTimeout = 2 * time.Second
)

// BrowserFactory creates elements that decode in headless Chrome. Each
// element owns one page containing a single muted <video>.
type BrowserFactory struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewBrowserFactory connects to the DevTools endpoint at controlURL, or
// launches a local headless Chrome when controlURL is empty.
func NewBrowserFactory(controlURL string) (*BrowserFactory, error) {
	f := &BrowserFactory{}

	wsURL := controlURL
	if wsURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		f.lnch = l
		logging.Info("Launched local headless Chrome at %s", wsURL)
	} else {
		logging.Info("Connecting to remote Chrome at %s", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		f.kill()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	f.browser = b
	return f, nil
}

// Close disconnects and, for a launched browser, kills the process.
func (f *BrowserFactory) Close() error {
	var err error
	if f.browser != nil {
		err = f.browser.Close()
	}
	f.kill()
	return err
}

func (f *BrowserFactory) kill() {
	if f.lnch != nil {
		f.lnch.Kill()
	}
}

// NewElement implements Factory.
func (f *BrowserFactory) NewElement(ctx context.Context) (Element, error) {
	createCtx, cancelCreate := context.WithTimeout(ctx, pageTimeout)
	defer cancelCreate()

	page, err := f.browser.Context(createCtx).Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	return &browserElement{page: page.Context(ctx), ctx: ctx, cancel: cancel}, nil
}

type browserElement struct {
	page   *rod.Page
	ctx    context.Context
	cancel context.CancelFunc
	events Emitter

	mu     sync.Mutex
	closed bool
}

// Scripts run inside the page. Each returns a JSON string so results come
// back through a single Str() call.
const (
	loadScript = `(src) => new Promise((resolve) => {
		let v = document.getElementById('thumb');
		if (v) { v.remove(); }
		v = document.createElement('video');
		v.id = 'thumb';
		v.muted = true;
		v.playsInline = true;
		v.preload = 'metadata';
		v.crossOrigin = 'anonymous';
		v.style.display = 'none';
		v.addEventListener('loadedmetadata', () => resolve(JSON.stringify({ok: true, duration: v.duration})), {once: true});
		v.addEventListener('error', () => resolve(JSON.stringify({ok: false, error: v.error ? v.error.message || ('media error ' + v.error.code) : 'media error'})), {once: true});
		document.body.appendChild(v);
		v.src = src;
	})`

	seekScript = `(t) => new Promise((resolve) => {
		const v = document.getElementById('thumb');
		if (!v) { resolve(JSON.stringify({ok: false, error: 'no video'})); return; }
		v.addEventListener('seeked', () => resolve(JSON.stringify({ok: true})), {once: true});
		v.currentTime = t;
	})`

	playScript  = `() => { const v = document.getElementById('thumb'); if (v) { v.play().catch(() => {}); } }`
	pauseScript = `() => { const v = document.getElementById('thumb'); if (v) { v.pause(); } }`

	frameScript = `() => {
		const v = document.getElementById('thumb');
		if (!v || !v.videoWidth || !v.videoHeight) { return ''; }
		const c = document.createElement('canvas');
		c.width = v.videoWidth;
		c.height = v.videoHeight;
		c.getContext('2d').drawImage(v, 0, 0, c.width, c.height);
		return c.toDataURL('image/png');
	}`
)

type scriptResult struct {
	OK       bool    `json:"ok"`
	Duration float64 `json:"duration"`
	Error    string  `json:"error"`
}

func (e *browserElement) AddListener(fn Listener) func() {
	return e.events.Add(fn)
}

func (e *browserElement) eval(command, js string, args ...interface{}) (string, error) {
	return e.evalOn(e.page, command, js, args...)
}

func (e *browserElement) evalTimeout(command, js string, args ...interface{}) (string, error) {
	page := e.page.Timeout(commandTimeout)
	defer page.CancelTimeout()
	return e.evalOn(page, command, js, args...)
}

func (e *browserElement) evalOn(page *rod.Page, command, js string, args ...interface{}) (string, error) {
	start := time.Now()
	defer func() {
		metrics.DecoderCommandDuration.WithLabelValues(browserBackend, command).Observe(time.Since(start).Seconds())
	}()

	res, err := page.Eval(js, args...)
	if err != nil {
		return "", fmt.Errorf("browser: %s: %w", command, err)
	}
	return res.Value.Str(), nil
}

func (e *browserElement) evalResult(command, js string, args ...interface{}) (scriptResult, error) {
	var r scriptResult
	raw, err := e.eval(command, js, args...)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return r, fmt.Errorf("browser: %s result: %w", command, err)
	}
	if !r.OK {
		return r, errors.New(r.Error)
	}
	return r, nil
}

func (e *browserElement) Load(src string) {
	go func() {
		r, err := e.evalResult("load", loadScript, src)
		if e.ctx.Err() != nil {
			return
		}
		if err != nil {
			e.events.Emit(Event{Kind: Error, Err: err})
			return
		}
		// Infinity and NaN (live or unknown streams) do not survive
		// JSON.stringify and arrive as zero.
		var d time.Duration
		if r.Duration > 0 {
			d = time.Duration(r.Duration * float64(time.Second))
		}
		e.events.Emit(Event{Kind: LoadedMetadata, Duration: d})
	}()
}

func (e *browserElement) Seek(pos time.Duration) {
	go func() {
		_, err := e.evalResult("seek", seekScript, pos.Seconds())
		if e.ctx.Err() != nil {
			return
		}
		if err != nil {
			e.events.Emit(Event{Kind: Error, Err: err})
			return
		}
		e.events.Emit(Event{Kind: Seeked})
	}()
}

// Play and Pause run synchronously so they stay ordered, bounded by
// commandTimeout.
func (e *browserElement) Play() {
	if _, err := e.evalTimeout("play", playScript); err != nil && e.ctx.Err() == nil {
		logging.Debug("browser play: %v", err)
	}
}

func (e *browserElement) Pause() {
	if _, err := e.evalTimeout("pause", pauseScript); err != nil && e.ctx.Err() == nil {
		logging.Debug("browser pause: %v", err)
	}
}

func (e *browserElement) Frame() (image.Image, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	uri, err := e.evalTimeout("frame", frameScript)
	if err != nil {
		return nil, err
	}
	if uri == "" || uri == "data:," {
		return emptyFrame(), nil
	}

	data, _, err := ParseDataURI(uri)
	if err != nil {
		return nil, err
	}
	return DecodeFrame(data)
}

func (e *browserElement) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.events.Close()
	e.cancel()

	// The page context is cancelled, so close through a fresh one, in the
	// background so a stuck browser cannot hold up the caller.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pageTimeout)
		defer cancel()
		if err := e.page.Context(ctx).Close(); err != nil {
			logging.Debug("browser: close page: %v", err)
		}
	}()
	return nil
}

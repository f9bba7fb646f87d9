package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"lazythumb/internal/cache"
	"lazythumb/internal/capture"
	"lazythumb/internal/extractor"
	"lazythumb/internal/media"
	"lazythumb/internal/media/mediatest"
)

type testServer struct {
	router  *mux.Router
	manager *capture.Manager
	store   cache.Store
	factory *mediatest.Factory
}

func newTestServer(t *testing.T, store cache.Store) *testServer {
	t.Helper()
	if store == nil {
		store = cache.NewMemoryStore(0)
	}
	factory := mediatest.NewFactory()
	manager := capture.NewManager(capture.Deps{
		Cache:   store,
		Factory: factory,
		Encoder: media.NewJPEGEncoder(),
	}, capture.Options{Extractor: extractor.Config{
		Deadline:    500 * time.Millisecond,
		SeekTimeout: 50 * time.Millisecond,
		PlayBurst:   10 * time.Millisecond,
	}})
	t.Cleanup(manager.Close)

	router := mux.NewRouter()
	New(manager, store, media.SourcePolicy{}).Register(router)
	return &testServer{router: router, manager: manager, store: store, factory: factory}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) mount(t *testing.T, req MountRequest) SurfaceResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/surfaces", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /api/surfaces = %d: %s", w.Code, w.Body.String())
	}
	return decodeSurface(t, w)
}

func decodeSurface(t *testing.T, w *httptest.ResponseRecorder) SurfaceResponse {
	t.Helper()
	var resp struct {
		ID     string            `json:"id"`
		URL    string            `json:"url"`
		State  string            `json:"state"`
		Phase  string            `json:"phase"`
		Source string            `json:"source"`
		View   capture.ViewModel `json:"view"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	out := SurfaceResponse{View: resp.View}
	out.ID = resp.ID
	out.URL = resp.URL
	out.Source = capture.Source(resp.Source)
	return out
}

func stateOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.State
}

func TestCreateSurfaceValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "url=x"},
		{"missing url", `{}`},
		{"blank url", `{"url":"   "}`},
		{"unknown field", `{"url":"https://cdn.example/a.mp4","extra":1}`},
		{"relative url", `{"url":"a.mp4"}`},
		{"file url", `{"url":"file:///etc/passwd"}`},
		{"local path", `{"url":"/etc/passwd"}`},
		{"option-like url", `{"url":"-show_entries"}`},
		{"ffmpeg protocol", `{"url":"concat:/etc/passwd|/etc/hosts"}`},
		{"poster scheme", `{"url":"https://cdn.example/a.mp4","externalPoster":"javascript:alert(1)"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/surfaces", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			srv.router.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
	if n := srv.manager.Active(); n != 0 {
		t.Errorf("%d surfaces mounted from invalid requests", n)
	}
	if n := srv.factory.Created(); n != 0 {
		t.Errorf("created %d media elements from invalid requests", n)
	}
}

func TestCreateSurfaceAllowedHosts(t *testing.T) {
	srv := newTestServer(t, nil)
	router := mux.NewRouter()
	New(srv.manager, srv.store, media.SourcePolicy{AllowedHosts: []string{"cdn.example"}}).Register(router)

	post := func(url string) int {
		body := strings.NewReader(`{"url":"` + url + `"}`)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/surfaces", body))
		return w.Code
	}

	if code := post("https://cdn.example/a.mp4"); code != http.StatusCreated {
		t.Errorf("allowed host = %d, want 201", code)
	}
	if code := post("http://169.254.169.254/latest/meta-data"); code != http.StatusBadRequest {
		t.Errorf("internal host = %d, want 400", code)
	}
}

func TestGetPosterRejectsUnsafeExternalPoster(t *testing.T) {
	srv := newTestServer(t, nil)

	s, err := srv.manager.Mount(capture.MediaReference{
		URL:            "https://cdn.example/a.mp4",
		ExternalPoster: "file:///etc/passwd",
	}, nil)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	w := srv.do(t, http.MethodGet, "/api/surfaces/"+s.ID()+"/poster", nil)
	if w.Code == http.StatusFound {
		t.Fatalf("redirected to %q", w.Header().Get("Location"))
	}
	if w.Header().Get("Content-Type") != "image/svg+xml" {
		t.Errorf("Content-Type = %q, want the placeholder", w.Header().Get("Content-Type"))
	}
}

func TestSurfaceGeneratedFlow(t *testing.T) {
	srv := newTestServer(t, nil)

	created := srv.mount(t, MountRequest{URL: "https://cdn.example/a.mp4"})
	if created.ID == "" || created.URL != "https://cdn.example/a.mp4" {
		t.Fatalf("created = %+v", created)
	}
	if created.View.Kind != capture.KindPlaceholder || !created.View.PlayOverlay {
		t.Errorf("initial view = %+v, want placeholder with overlay", created.View)
	}

	base := "/api/surfaces/" + created.ID

	w := srv.do(t, http.MethodGet, base+"/poster", nil)
	if ct := w.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("poster before visibility Content-Type = %q, want svg", ct)
	}

	w = srv.do(t, http.MethodPost, base+"/intersections", map[string]float64{"ratio": 0.5})
	if w.Code != http.StatusNoContent {
		t.Fatalf("POST intersections = %d: %s", w.Code, w.Body.String())
	}

	w = srv.do(t, http.MethodGet, base+"?wait=2s", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET surface = %d", w.Code)
	}
	if got := stateOf(t, w); got != "done" {
		t.Fatalf("state = %q, want done", got)
	}
	got := decodeSurface(t, w)
	if got.View.Kind != capture.KindThumbnail || !strings.HasPrefix(got.View.Src, "data:image/jpeg;base64,") {
		t.Errorf("view = %+v, want JPEG thumbnail", got.View)
	}
	if got.Source != capture.SourceGenerated {
		t.Errorf("source = %q, want generated", got.Source)
	}
	if strings.Contains(w.Body.String(), `"payload"`) {
		t.Error("payload duplicated outside view.src")
	}

	w = srv.do(t, http.MethodGet, base+"/poster", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("poster = %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if _, err := media.DecodeFrame(w.Body.Bytes()); err != nil {
		t.Errorf("poster body is not an image: %v", err)
	}

	// The thumbnail landed in the cache under the raw URL.
	w = srv.do(t, http.MethodGet, "/api/thumbnails?url=https://cdn.example/a.mp4", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET thumbnails = %d", w.Code)
	}
	var res cache.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Payload != got.View.Src {
		t.Error("cached payload differs from the rendered thumbnail")
	}

	w = srv.do(t, http.MethodDelete, base, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("DELETE surface = %d", w.Code)
	}
	w = srv.do(t, http.MethodGet, base, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("GET after delete = %d, want 404", w.Code)
	}
}

func TestSurfaceExternalPosterRedirects(t *testing.T) {
	srv := newTestServer(t, nil)

	created := srv.mount(t, MountRequest{URL: "https://cdn.example/a.mp4", ExternalPoster: "https://img.example/p.jpg"})
	if created.View.Kind != capture.KindThumbnail || created.View.Src != "https://img.example/p.jpg" {
		t.Fatalf("view = %+v, want external poster", created.View)
	}

	w := srv.do(t, http.MethodGet, "/api/surfaces/"+created.ID+"/poster", nil)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "https://img.example/p.jpg" {
		t.Errorf("poster = %d Location %q", w.Code, w.Header().Get("Location"))
	}
	if n := srv.factory.Created(); n != 0 {
		t.Errorf("created %d elements for an external poster", n)
	}
}

func TestSurfaceFailureShowsPlaceholder(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.factory.Script("https://cdn.example/broken.mp4", mediatest.Script{LoadError: errors.New("unsupported codec")})

	created := srv.mount(t, MountRequest{URL: "https://cdn.example/broken.mp4"})
	base := "/api/surfaces/" + created.ID
	srv.do(t, http.MethodPost, base+"/intersections", map[string]float64{"ratio": 1})

	w := srv.do(t, http.MethodGet, base+"?wait=2s", nil)
	if got := stateOf(t, w); got != "done_no_thumbnail" {
		t.Fatalf("state = %q, want done_no_thumbnail", got)
	}
	if v := decodeSurface(t, w).View; v.Kind != capture.KindPlaceholder || !v.PlayOverlay {
		t.Errorf("view = %+v, want placeholder with overlay", v)
	}

	w = srv.do(t, http.MethodGet, base+"/poster", nil)
	if w.Header().Get("Content-Type") != "image/svg+xml" || !strings.Contains(w.Body.String(), "<svg") {
		t.Errorf("poster after failure is not the placeholder")
	}
}

func TestGenerateSurface(t *testing.T) {
	srv := newTestServer(t, nil)
	created := srv.mount(t, MountRequest{URL: "https://cdn.example/a.mp4"})

	w := srv.do(t, http.MethodPost, "/api/surfaces/"+created.ID+"/generate", nil)
	if w.Code != http.StatusAccepted {
		t.Errorf("generate = %d, want 202", w.Code)
	}
	if got := stateOf(t, w); got != "waiting_for_visibility" {
		t.Errorf("state = %q, want waiting_for_visibility", got)
	}

	w = srv.do(t, http.MethodPost, "/api/surfaces/nope/generate", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("generate unknown = %d, want 404", w.Code)
	}
}

func TestReportIntersectionValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	created := srv.mount(t, MountRequest{URL: "https://cdn.example/a.mp4"})
	base := "/api/surfaces/" + created.ID + "/intersections"

	tests := []struct {
		name string
		path string
		body interface{}
		want int
	}{
		{"ratio above one", base, map[string]float64{"ratio": 2}, http.StatusBadRequest},
		{"negative distance", base, map[string]float64{"distance": -1}, http.StatusBadRequest},
		{"unknown field", base, map[string]float64{"width": 1}, http.StatusBadRequest},
		{"unknown surface", "/api/surfaces/nope/intersections", map[string]float64{"ratio": 1}, http.StatusNotFound},
		{"far away", base, map[string]float64{"distance": 5000}, http.StatusNoContent},
		{"zero ratio without distance", base, map[string]float64{"ratio": 0}, http.StatusBadRequest},
		{"empty report", base, map[string]float64{}, http.StatusBadRequest},
		{"zero ratio at the edge", base, map[string]float64{"ratio": 0, "distance": 0}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := srv.do(t, http.MethodPost, tt.path, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestGetSurfaceWait(t *testing.T) {
	srv := newTestServer(t, nil)
	created := srv.mount(t, MountRequest{URL: "https://cdn.example/a.mp4"})
	base := "/api/surfaces/" + created.ID

	if w := srv.do(t, http.MethodGet, base+"?wait=soon", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad wait = %d, want 400", w.Code)
	}

	start := time.Now()
	w := srv.do(t, http.MethodGet, base+"?wait=50ms", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET = %d", w.Code)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("wait returned before the duration elapsed on a pending surface")
	}
	if got := stateOf(t, w); got != "waiting_for_visibility" {
		t.Errorf("state = %q, want waiting_for_visibility", got)
	}
}

func TestSurfaceNotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, tt := range []struct{ method, path string }{
		{http.MethodGet, "/api/surfaces/nope"},
		{http.MethodGet, "/api/surfaces/nope/poster"},
		{http.MethodDelete, "/api/surfaces/nope"},
	} {
		if w := srv.do(t, tt.method, tt.path, nil); w.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tt.method, tt.path, w.Code)
		}
	}
}

func TestCreateSurfaceAfterClose(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.manager.Close()

	w := srv.do(t, http.MethodPost, "/api/surfaces", MountRequest{URL: "https://cdn.example/a.mp4"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestThumbnailCacheRoutes(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	jpeg, err := media.NewJPEGEncoder().Encode(mediatestFrame())
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.store.Put(ctx, "v.mp4", jpeg); err != nil {
		t.Fatal(err)
	}

	if w := srv.do(t, http.MethodGet, "/api/thumbnails", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing url = %d, want 400", w.Code)
	}
	if w := srv.do(t, http.MethodGet, "/api/thumbnails?url=other.mp4", nil); w.Code != http.StatusNotFound {
		t.Errorf("miss = %d, want 404", w.Code)
	}

	w := srv.do(t, http.MethodGet, "/api/thumbnails?url=v.mp4&format=image", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("image = %d %q", w.Code, w.Header().Get("Content-Type"))
	}

	w = srv.do(t, http.MethodGet, "/api/thumbnails/stats", nil)
	var stats cache.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 || stats.TotalBytes != int64(len(jpeg)) {
		t.Errorf("stats = %+v", stats)
	}

	if w := srv.do(t, http.MethodDelete, "/api/thumbnails?url=v.mp4", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := srv.do(t, http.MethodDelete, "/api/thumbnails?url=v.mp4", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete again = %d, want 204", w.Code)
	}
	if _, err := srv.store.Get(ctx, "v.mp4"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
}

func TestThumbnailNotAnImage(t *testing.T) {
	srv := newTestServer(t, nil)
	if err := srv.store.Put(context.Background(), "v.mp4", "https://img.example/p.jpg"); err != nil {
		t.Fatal(err)
	}
	w := srv.do(t, http.MethodGet, "/api/thumbnails?url=v.mp4&format=image", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

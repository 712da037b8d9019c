package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/matzehuels/wakacard/pkg/cache"
	"github.com/matzehuels/wakacard/pkg/card"
	"github.com/matzehuels/wakacard/pkg/metrics"
	"github.com/matzehuels/wakacard/pkg/pipeline"
)

const statsBody = `{
	"data": {
		"username": "alice",
		"id": "ignored-upstream-field",
		"categories": [{"name": "Coding", "total_seconds": 36000}],
		"languages": [
			{"name": "Go", "total_seconds": 18000, "percent": 50},
			{"name": "Rust", "total_seconds": 9000}
		]
	}
}`

type stubAvatars struct{}

func (stubAvatars) Fetch(context.Context, string) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.White)
	return img
}

func (stubAvatars) FetchURL(context.Context, string) image.Image { return nil }

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	r := pipeline.NewRunner(cache.NewMemoryCache(16, 0), nil, nil)
	r.Avatars = stubAvatars{}
	r.Clock = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return New(r, opts...)
}

func post(t *testing.T, s http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/cards", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestCreateCard(t *testing.T) {
	s := newTestServer(t)
	rec := post(t, s, `{"stats": `+statsBody+`}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Header().Get("X-Card-ID") == "" {
		t.Error("missing X-Card-ID")
	}
	if got := rec.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache = %q, want MISS", got)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("body is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 500 || b.Dy() != 320 {
		t.Errorf("bounds = %v", b)
	}

	again := post(t, s, `{"stats": `+statsBody+`}`)
	if got := again.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("second X-Cache = %q, want HIT", got)
	}
}

func TestCreateCardErrors(t *testing.T) {
	noData := `{"data": {"username": "bob", "categories": [], "languages": []}}`
	lookupErr := `{"error": "Not found."}`

	tests := []struct {
		name   string
		body   string
		status int
		code   string
		msg    string
	}{
		{"no data", `{"stats": ` + noData + `}`, http.StatusUnprocessableEntity, "NO_DATA", "user bob has no usable coding data."},
		{"lookup error", `{"stats": ` + lookupErr + `}`, http.StatusBadRequest, "INVALID_USERNAME", "check the username"},
		{"missing stats", `{"username": "alice"}`, http.StatusBadRequest, "INVALID_INPUT", "stats are required"},
		{"null stats", `{"stats": null}`, http.StatusBadRequest, "INVALID_INPUT", "stats are required"},
		{"unknown field", `{"stats": ` + statsBody + `, "colour": "red"}`, http.StatusBadRequest, "INVALID_INPUT", "decode request"},
		{"bad json", `{`, http.StatusBadRequest, "INVALID_INPUT", "decode request"},
		{"bad username", `{"username": "../x", "stats": ` + statsBody + `}`, http.StatusBadRequest, "INVALID_USERNAME", ""},
		{"bad variant", `{"variant": "wide", "stats": ` + statsBody + `}`, http.StatusBadRequest, "INVALID_INPUT", "invalid variant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, newTestServer(t), tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
			if !strings.Contains(resp.Error, tt.msg) {
				t.Errorf("error = %q, want it to contain %q", resp.Error, tt.msg)
			}
			if resp.RequestID == "" {
				t.Error("missing request_id")
			}
		})
	}
}

func TestCreateCardBodyLimit(t *testing.T) {
	s := newTestServer(t, WithMaxBodyBytes(64))
	rec := post(t, s, `{"stats": `+statsBody+`}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["version"] == "" {
		t.Errorf("body = %v", body)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := newTestServer(t, WithMetrics(m, reg))

	post(t, s, `{"stats": `+statsBody+`}`)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `wakacard_http_requests_total{method="POST",route="/v1/cards",status="200"} 1`) {
		t.Errorf("request metric missing from:\n%s", rec.Body)
	}
	if n := testutil.CollectAndCount(reg, "wakacard_http_request_duration_seconds"); n == 0 {
		t.Error("no request duration recorded")
	}
}

func TestMetricsDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without metrics", rec.Code)
	}
}

func TestSetRunner(t *testing.T) {
	s := newTestServer(t)
	r := pipeline.NewRunner(nil, nil, nil)
	only, err := card.NewRenderer()
	if err != nil {
		t.Fatal(err)
	}
	r.Renderers = map[string]*card.Renderer{pipeline.VariantDefault: only}
	s.SetRunner(r)
	if s.Runner() != r {
		t.Fatal("Runner() did not return the new runner")
	}

	rec := post(t, s, `{"variant": "alt", "stats": `+statsBody+`}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 from the swapped runner", rec.Code)
	}
}

func TestDefaultVariant(t *testing.T) {
	s := newTestServer(t)
	s.Runner().DefaultVariant = pipeline.VariantAlt

	body := func(variant string) []byte {
		t.Helper()
		req := `{"stats": ` + statsBody + `}`
		if variant != "" {
			req = `{"variant": "` + variant + `", "stats": ` + statsBody + `}`
		}
		rec := post(t, s, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("variant %q: status = %d, body = %s", variant, rec.Code, rec.Body)
		}
		return rec.Body.Bytes()
	}

	unnamed := body("")
	if !bytes.Equal(unnamed, body(pipeline.VariantAlt)) {
		t.Error("a request without a variant should render the server's default variant")
	}
	if bytes.Equal(unnamed, body(pipeline.VariantDefault)) {
		t.Error("explicit default variant rendered the alt layout")
	}
}

func TestCreateCardAvatarURL(t *testing.T) {
	tests := []struct {
		name   string
		hosts  []string
		url    string
		status int
	}{
		{"disabled", nil, "https://avatars.example.com/a.png", http.StatusBadRequest},
		{"allowed host", []string{"avatars.example.com"}, "https://avatars.example.com/a.png", http.StatusOK},
		{"host case", []string{"Avatars.Example.com"}, "https://AVATARS.example.com/a.png", http.StatusOK},
		{"other host", []string{"avatars.example.com"}, "https://evil.example.com/a.png", http.StatusBadRequest},
		{"loopback", []string{"avatars.example.com"}, "http://127.0.0.1:6379/", http.StatusBadRequest},
		{"metadata", []string{"avatars.example.com"}, "http://169.254.169.254/latest/meta-data/", http.StatusBadRequest},
		{"file scheme", []string{"avatars.example.com"}, "file:///etc/passwd", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, WithAvatarHosts(tt.hosts...))
			body, _ := json.Marshal(map[string]any{
				"avatar_url": tt.url,
				"stats":      json.RawMessage(statsBody),
			})
			rec := post(t, s, string(body))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			if tt.status != http.StatusOK {
				var resp errorResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatal(err)
				}
				if resp.Code != "INVALID_INPUT" {
					t.Errorf("code = %q, want INVALID_INPUT", resp.Code)
				}
			}
		})
	}
}

func TestListenAndServeShutdown(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(bytes.ErrTooLarge); got != http.StatusInternalServerError {
		t.Errorf("statusFor(plain error) = %d", got)
	}
}

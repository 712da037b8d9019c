package avatar

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/wakacard/pkg/cache"
	"github.com/matzehuels/wakacard/pkg/errors"
	"github.com/matzehuels/wakacard/pkg/httputil"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testConfig(base string) Config {
	return Config{
		BaseURL: base,
		HTTP:    httputil.Options{RetryMax: -1, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond},
	}
}

func TestURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"", "https://wakatime.com/photo/@alice"},
		{"http://localhost:9000/", "http://localhost:9000/photo/@alice"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			c, err := NewClient(Config{BaseURL: tt.base}, nil, nil, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got := c.URL("alice"); got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewClientRejectsBadBase(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "ftp://example.com"}, nil, nil, nil); err == nil {
		t.Error("expected error for non-http base URL")
	}
}

func TestFetch(t *testing.T) {
	data := pngBytes(t, 4, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/photo/@alice":
			w.Header().Set("Content-Type", "image/png")
			w.Write(data)
		case "/photo/@garbage":
			w.Write([]byte("not an image"))
		case "/photo/@broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL), nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		user string
		want bool
	}{
		{"alice", true},
		{"nobody", false},
		{"garbage", false},
		{"broken", false},
		{"../etc", false},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			img := c.Fetch(context.Background(), tt.user)
			if (img != nil) != tt.want {
				t.Fatalf("Fetch(%q) = %v, want image=%v", tt.user, img, tt.want)
			}
			if img != nil && (img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3) {
				t.Errorf("bounds = %v, want 4x3", img.Bounds())
			}
		})
	}
}

func TestFetchUsesCache(t *testing.T) {
	data := pngBytes(t, 2, 2)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write(data)
	}))
	defer srv.Close()

	mem := cache.NewMemoryCache(8, 0)
	c, err := NewClient(testConfig(srv.URL), mem, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if c.Fetch(ctx, "alice") == nil {
			t.Fatalf("fetch %d returned nil", i)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
	if _, ok, _ := mem.Get(ctx, "avatar:alice"); !ok {
		t.Error("avatar bytes not cached under avatar:alice")
	}
}

func TestFetchDropsUndecodableCacheEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("junk"))
	}))
	defer srv.Close()

	mem := cache.NewMemoryCache(8, 0)
	c, err := NewClient(testConfig(srv.URL), mem, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if c.Fetch(ctx, "alice") != nil {
		t.Fatal("expected nil for undecodable avatar")
	}
	if _, ok, _ := mem.Get(ctx, "avatar:alice"); ok {
		t.Error("undecodable bytes should be evicted")
	}
}

func TestCheckExists(t *testing.T) {
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/photo/@alice" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method == http.MethodGet {
			gets.Add(1)
			w.Write(pngBytes(t, 1, 1))
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.CheckExists = true
	c, err := NewClient(cfg, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	ok, err := c.Exists(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("Exists(alice) = %v, %v", ok, err)
	}
	ok, err = c.Exists(ctx, "bob")
	if err != nil || ok {
		t.Fatalf("Exists(bob) = %v, %v", ok, err)
	}

	if c.Fetch(ctx, "bob") != nil {
		t.Error("expected nil avatar for bob")
	}
	if gets.Load() != 0 {
		t.Error("GET issued for a user whose HEAD failed")
	}
	if c.Fetch(ctx, "alice") == nil {
		t.Error("expected avatar for alice")
	}
}

func TestFetchURL(t *testing.T) {
	data := pngBytes(t, 3, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL), nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.FetchURL(context.Background(), srv.URL+"/any.png") == nil {
		t.Error("FetchURL() returned nil")
	}
	if c.FetchURL(context.Background(), "file:///etc/passwd") != nil {
		t.Error("FetchURL() accepted a non-http URL")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "a.png")
	bad := filepath.Join(dir, "b.png")
	if err := os.WriteFile(good, pngBytes(t, 5, 5), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"valid", good, true},
		{"corrupt", bad, false},
		{"missing", filepath.Join(dir, "none.png"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Load(tt.path, nil) != nil; got != tt.want {
				t.Errorf("Load(%s) image=%v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

// pngHeader returns a PNG signature and IHDR chunk claiming w x h RGBA
// pixels, with no image data behind it.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 17)
	copy(ihdr, "IHDR")
	binary.BigEndian.PutUint32(ihdr[4:], w)
	binary.BigEndian.PutUint32(ihdr[8:], h)
	ihdr[12] = 8 // bit depth
	ihdr[13] = 6 // truecolor with alpha

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.Write(ihdr)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(ihdr))
	return buf.Bytes()
}

func TestDecodeDimensionLimit(t *testing.T) {
	tests := []struct {
		name string
		w, h uint32
	}{
		{"wide", 20000, 16},
		{"tall", 16, 20000},
		{"huge", 20000, 20000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(pngHeader(tt.w, tt.h))
			if !errors.Is(err, errors.ErrCodeAvatar) {
				t.Fatalf("Decode() error = %v, want %s", err, errors.ErrCodeAvatar)
			}
			if !strings.Contains(err.Error(), "limit is 4096x4096") {
				t.Errorf("Decode() error = %v, want the dimension limit", err)
			}
		})
	}
}

func TestDecodeAtLimit(t *testing.T) {
	img, err := Decode(pngBytes(t, MaxDimension, 1))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := img.Bounds().Dx(); got != MaxDimension {
		t.Errorf("width = %d, want %d", got, MaxDimension)
	}
}

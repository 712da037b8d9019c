package httputil

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/matzehuels/wakacard/pkg/observability"
)

func fastOptions() Options {
	return Options{RetryWaitMin: time.Millisecond, RetryWaitMax: 2 * time.Millisecond}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(fastOptions())
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestClientDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	resp, err := NewClient(fastOptions()).Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound || calls.Load() != 1 {
		t.Errorf("status = %d after %d calls, want 404 after 1", resp.StatusCode, calls.Load())
	}
}

func TestClientPassesThroughFinalResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	opts := fastOptions()
	opts.RetryMax = 1
	resp, err := NewClient(opts).Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestClientSetsUserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	resp, err := NewClient(fastOptions()).Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !strings.HasPrefix(ua, "wakacard/") {
		t.Errorf("User-Agent = %q, want wakacard/ prefix", ua)
	}
}

type httpRecorder struct {
	observability.NoopHTTPHooks
	mu       sync.Mutex
	statuses []int
	errors   int
}

func (r *httpRecorder) OnResponse(_ context.Context, _, _, _ string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *httpRecorder) OnError(context.Context, string, string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors++
}

func TestClientReportsEveryAttempt(t *testing.T) {
	defer observability.Reset()
	rec := &httpRecorder{}
	observability.SetHTTPHooks(rec)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	resp, err := NewClient(fastOptions()).Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.statuses) != 2 || rec.statuses[0] != 500 || rec.statuses[1] != 200 {
		t.Errorf("statuses = %v, want [500 200]", rec.statuses)
	}
}

func TestClientRetryLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	opts := fastOptions()
	opts.RetryMax = 1
	opts.Logger = logger
	resp, err := NewClient(opts).Get(srv.URL)
	if err == nil {
		resp.Body.Close()
	}
	if buf.Len() == 0 {
		t.Error("expected retry attempts to be logged")
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Options{})
	if c.RetryMax != DefaultRetryMax {
		t.Errorf("RetryMax = %d, want %d", c.RetryMax, DefaultRetryMax)
	}
	if c.HTTPClient.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.HTTPClient.Timeout, DefaultTimeout)
	}
	if c.Logger != nil {
		t.Errorf("Logger = %v, want nil", c.Logger)
	}

	if NewClient(Options{RetryMax: -1}).RetryMax != 0 {
		t.Error("negative RetryMax should disable retries")
	}
	var _ retryablehttp.LeveledLogger = LeveledLogger{L: log.Default()}
}

func TestPublicOnly(t *testing.T) {
	tests := []struct {
		addr    string
		allowed bool
	}{
		{"93.184.216.34:443", true},
		{"[2606:4700::6810:84e5]:443", true},
		{"127.0.0.1:80", false},
		{"[::1]:80", false},
		{"10.0.0.8:6379", false},
		{"172.16.4.1:80", false},
		{"192.168.1.1:80", false},
		{"169.254.169.254:80", false},
		{"0.0.0.0:80", false},
		{"[fc00::1]:80", false},
		{"[fe80::1]:80", false},
		{"[::ffff:127.0.0.1]:80", false},
		{"not-an-address", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := publicOnly("tcp", tt.addr, nil)
			if tt.allowed && err != nil {
				t.Errorf("publicOnly(%s) = %v, want allowed", tt.addr, err)
			}
			if !tt.allowed && !errors.Is(err, ErrNonPublicAddress) {
				t.Errorf("publicOnly(%s) = %v, want ErrNonPublicAddress", tt.addr, err)
			}
		})
	}
}

func TestClientPublicOnlyRefusesLoopback(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	opts := fastOptions()
	opts.RetryMax = -1
	opts.PublicOnly = true
	resp, err := NewClient(opts).Get(srv.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected the loopback connection to be refused")
	}
	if !errors.Is(err, ErrNonPublicAddress) {
		t.Errorf("Get() error = %v, want ErrNonPublicAddress", err)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("server saw %d requests", n)
	}

	opts.PublicOnly = false
	resp, err = NewClient(opts).Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() without PublicOnly error = %v", err)
	}
	resp.Body.Close()
}

package httputil

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/matzehuels/wakacard/pkg/buildinfo"
	"github.com/matzehuels/wakacard/pkg/observability"
)

// Defaults for [Options].
const (
	DefaultTimeout      = 10 * time.Second
	DefaultRetryMax     = 2
	DefaultRetryWaitMin = 200 * time.Millisecond
	DefaultRetryWaitMax = 2 * time.Second
)

// Options configures NewClient. Zero values select the defaults; a negative
// RetryMax disables retries.
type Options struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *log.Logger
	Transport    http.RoundTripper
	// PublicOnly refuses connections to loopback, private, link-local and
	// unspecified addresses, including after redirects. It applies to the
	// default transport only and disables proxies.
	PublicOnly bool
}

// ErrNonPublicAddress is returned for connections refused by PublicOnly.
var ErrNonPublicAddress = errors.New("refusing to connect to a non-public address")

// NewClient builds a retrying HTTP client.
func NewClient(opts Options) *retryablehttp.Client {
	c := retryablehttp.NewClient()

	c.HTTPClient.Timeout = orDuration(opts.Timeout, DefaultTimeout)
	c.RetryWaitMin = orDuration(opts.RetryWaitMin, DefaultRetryWaitMin)
	c.RetryWaitMax = orDuration(opts.RetryWaitMax, DefaultRetryWaitMax)
	switch {
	case opts.RetryMax < 0:
		c.RetryMax = 0
	case opts.RetryMax == 0:
		c.RetryMax = DefaultRetryMax
	default:
		c.RetryMax = opts.RetryMax
	}

	if opts.Logger != nil {
		c.Logger = LeveledLogger{opts.Logger}
	} else {
		c.Logger = nil
	}

	base := opts.Transport
	if base == nil {
		base = c.HTTPClient.Transport
		if t, ok := base.(*http.Transport); ok && opts.PublicOnly {
			t = t.Clone()
			t.Proxy = nil
			t.DialContext = (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
				Control:   publicOnly,
			}).DialContext
			base = t
		}
	}
	c.HTTPClient.Transport = &hookTransport{base: base}
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return c
}

// UserAgent is sent with every request made by NewClient's clients.
func UserAgent() string {
	return fmt.Sprintf("wakacard/%s", buildinfo.Version)
}

// hookTransport reports each attempt to the observability HTTP hooks.
type hookTransport struct {
	base http.RoundTripper
}

func (t *hookTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent())
	}

	hooks := observability.HTTP()
	ctx, host, path := req.Context(), req.URL.Host, req.URL.Path
	hooks.OnRequest(ctx, req.Method, host, path)

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, host, path, err)
		return nil, err
	}
	hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))
	return resp, nil
}

// publicOnly is a net.Dialer Control hook. It sees the resolved address, so
// hostnames that resolve to internal addresses are refused too.
func publicOnly(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNonPublicAddress, address)
	}
	ip := ap.Addr().Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() {
		return fmt.Errorf("%w: %s", ErrNonPublicAddress, ip)
	}
	return nil
}

// LeveledLogger adapts a charm logger to retryablehttp.LeveledLogger.
type LeveledLogger struct {
	L *log.Logger
}

func (l LeveledLogger) Error(msg string, keysAndValues ...any) { l.L.Error(msg, keysAndValues...) }
func (l LeveledLogger) Info(msg string, keysAndValues ...any)  { l.L.Info(msg, keysAndValues...) }
func (l LeveledLogger) Debug(msg string, keysAndValues ...any) { l.L.Debug(msg, keysAndValues...) }
func (l LeveledLogger) Warn(msg string, keysAndValues ...any)  { l.L.Warn(msg, keysAndValues...) }

var _ retryablehttp.LeveledLogger = LeveledLogger{}

func orDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

// Package metrics exports observability hook events as Prometheus metrics.
//
// A [Metrics] value implements every hook interface in the observability
// package, so one instance can be registered for all of them:
//
//	m := metrics.New(reg)
//	observability.SetCardHooks(m)
//	observability.SetCacheHooks(m)
//	observability.SetHTTPHooks(m)
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/wakacard/pkg/observability"
)

const namespace = "wakacard"

// Metrics holds the registered collectors.
type Metrics struct {
	summaries      *prometheus.CounterVec
	avatars        *prometheus.CounterVec
	avatarDuration prometheus.Histogram
	renders        *prometheus.CounterVec
	renderDuration prometheus.Histogram
	cardBytes      prometheus.Histogram
	cacheEvents    *prometheus.CounterVec
	upstream       *prometheus.CounterVec
	upstreamTime   *prometheus.HistogramVec
	requests       *prometheus.CounterVec
	requestTime    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "summaries_total",
			Help: "Stats payloads summarized, by result.",
		}, []string{"result"}),
		avatars: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "avatars_total",
			Help: "Avatar resolutions, by whether an avatar was found.",
		}, []string{"found"}),
		avatarDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "avatar_duration_seconds",
			Help:    "Time spent resolving avatars.",
			Buckets: prometheus.DefBuckets,
		}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "renders_total",
			Help: "Cards rendered, by result.",
		}, []string{"result"}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "render_duration_seconds",
			Help:    "Time spent drawing and encoding cards.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}),
		cardBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "card_bytes",
			Help:    "Encoded card size.",
			Buckets: prometheus.ExponentialBuckets(4096, 2, 8),
		}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_events_total",
			Help: "Cache lookups and writes, by key type and event.",
		}, []string{"key_type", "event"}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "upstream_requests_total",
			Help: "Outgoing HTTP requests, by host and status.",
		}, []string{"method", "host", "status"}),
		upstreamTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "upstream_request_duration_seconds",
			Help:    "Outgoing HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "host"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "Served HTTP requests, by route and status.",
		}, []string{"method", "route", "status"}),
		requestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "Served HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.summaries, m.avatars, m.avatarDuration,
		m.renders, m.renderDuration, m.cardBytes,
		m.cacheEvents, m.upstream, m.upstreamTime,
		m.requests, m.requestTime,
	)
	return m
}

// Install registers m for every observability hook.
func (m *Metrics) Install() {
	observability.SetCardHooks(m)
	observability.SetCacheHooks(m)
	observability.SetHTTPHooks(m)
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestTime.WithLabelValues(method, route).Observe(d.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// OnSummarize implements observability.CardHooks.
func (m *Metrics) OnSummarize(_ context.Context, _ string, _ int, err error) {
	m.summaries.WithLabelValues(result(err)).Inc()
}

// OnAvatarStart implements observability.CardHooks.
func (m *Metrics) OnAvatarStart(context.Context, string) {}

// OnAvatarComplete implements observability.CardHooks.
func (m *Metrics) OnAvatarComplete(_ context.Context, _ string, found bool, d time.Duration) {
	m.avatars.WithLabelValues(strconv.FormatBool(found)).Inc()
	m.avatarDuration.Observe(d.Seconds())
}

// OnRenderStart implements observability.CardHooks.
func (m *Metrics) OnRenderStart(context.Context, string) {}

// OnRenderComplete implements observability.CardHooks.
func (m *Metrics) OnRenderComplete(_ context.Context, _ string, size int, d time.Duration, err error) {
	m.renders.WithLabelValues(result(err)).Inc()
	if err != nil {
		return
	}
	m.renderDuration.Observe(d.Seconds())
	m.cardBytes.Observe(float64(size))
}

// OnCacheHit implements observability.CacheHooks.
func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.cacheEvents.WithLabelValues(keyType, "hit").Inc()
}

// OnCacheMiss implements observability.CacheHooks.
func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheEvents.WithLabelValues(keyType, "miss").Inc()
}

// OnCacheSet implements observability.CacheHooks.
func (m *Metrics) OnCacheSet(_ context.Context, keyType string, _ int) {
	m.cacheEvents.WithLabelValues(keyType, "set").Inc()
}

// OnRequest implements observability.HTTPHooks.
func (m *Metrics) OnRequest(context.Context, string, string, string) {}

// OnResponse implements observability.HTTPHooks.
func (m *Metrics) OnResponse(_ context.Context, method, host, _ string, status int, d time.Duration) {
	m.upstream.WithLabelValues(method, host, strconv.Itoa(status)).Inc()
	m.upstreamTime.WithLabelValues(method, host).Observe(d.Seconds())
}

// OnError implements observability.HTTPHooks.
func (m *Metrics) OnError(_ context.Context, method, host, _ string, _ error) {
	m.upstream.WithLabelValues(method, host, "error").Inc()
}

var (
	_ observability.CardHooks  = (*Metrics)(nil)
	_ observability.CacheHooks = (*Metrics)(nil)
	_ observability.HTTPHooks  = (*Metrics)(nil)
)

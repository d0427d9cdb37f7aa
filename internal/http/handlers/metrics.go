package handlers

import (
	"bytes"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "idgate/internal/db"
)

var (
	requestsTotal          *prometheus.CounterVec
	requestDurationBuckets *prometheus.HistogramVec
	gateDenialsTotal       *prometheus.CounterVec
	validationsTotal       *prometheus.CounterVec
)

func InitPrometheusMetrics() {
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idgate",
			Name:      "requests_total",
			Help:      "Total number of API requests handled.",
		},
		[]string{"key", "endpoint", "method", "status"},
	)
	requestDurationBuckets = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "idgate",
			Name:      "request_duration_seconds",
			Help:      "Histogram of API request durations in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"key", "endpoint", "method"},
	)
	gateDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idgate",
			Name:      "gate_denials_total",
			Help:      "Requests denied by the access gate, by reason.",
		},
		[]string{"reason"},
	)
	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idgate",
			Name:      "validations_total",
			Help:      "National ID validation outcomes.",
		},
		[]string{"outcome"},
	)
	prometheus.MustRegister(requestsTotal, requestDurationBuckets, gateDenialsTotal, validationsTotal)
}

// ObserveRequest records one handled request. keyName labels the metric
// with the key's human-friendly name (never the secret), or "anonymous"
// for exempt calls.
func ObserveRequest(keyName, endpoint, method string, status int, duration time.Duration) {
	if requestsTotal == nil {
		return
	}
	if keyName == "" {
		keyName = "anonymous"
	}
	requestsTotal.WithLabelValues(keyName, endpoint, method, strconv.Itoa(status)).Inc()
	requestDurationBuckets.WithLabelValues(keyName, endpoint, method).Observe(duration.Seconds())
}

// CountDenial records a gate denial by reason.
func CountDenial(reason string) {
	if gateDenialsTotal == nil {
		return
	}
	gateDenialsTotal.WithLabelValues(reason).Inc()
}

// CountValidation records a decoder outcome.
func CountValidation(ok bool) {
	if validationsTotal == nil {
		return
	}
	outcome := "invalid"
	if ok {
		outcome = "valid"
	}
	validationsTotal.WithLabelValues(outcome).Inc()
}

// MetricsHandler serves the full Prometheus text exposition.
func MetricsHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		families, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to gather metrics")
			return
		}
		encodeFamilies(ctx, families)
	}
}

// KeyMetricsHandler serves the exposition filtered down to one API key,
// authenticated by that key's secret in the api-key query parameter so
// key owners can scrape their own traffic.
func KeyMetricsHandler(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		secret := string(ctx.QueryArgs().Peek("api-key"))
		if secret == "" {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			ctx.SetBodyString("missing api-key query parameter")
			return
		}

		key, err := dbpkg.FindAPIKeyBySecret(db, secret)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("invalid API key")
				return
			}
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("database error")
			return
		}

		families, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to gather metrics")
			return
		}

		encodeFamilies(ctx, filterByKeyLabel(families, key.Name))
	}
}

// filterByKeyLabel keeps metric families without a "key" label as-is and
// narrows the rest to the series for the given key name.
func filterByKeyLabel(families []*dto.MetricFamily, keyName string) []*dto.MetricFamily {
	filtered := make([]*dto.MetricFamily, 0, len(families))
	for _, mf := range families {
		hasKeyLabel := false
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "key" {
					hasKeyLabel = true
					break
				}
			}
			if hasKeyLabel {
				break
			}
		}

		if !hasKeyLabel {
			filtered = append(filtered, mf)
			continue
		}

		var kept []*dto.Metric
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "key" && l.GetValue() == keyName {
					kept = append(kept, m)
					break
				}
			}
		}
		if len(kept) == 0 {
			continue
		}

		filtered = append(filtered, &dto.MetricFamily{
			Name:   mf.Name,
			Help:   mf.Help,
			Type:   mf.Type,
			Metric: kept,
		})
	}
	return filtered
}

func encodeFamilies(ctx *fasthttp.RequestCtx, families []*dto.MetricFamily) {
	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to encode metrics")
			return
		}
	}

	ctx.SetContentType(string(expfmt.FmtText))
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.SetBody(buf.Bytes())
}

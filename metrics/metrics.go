// Package metrics exposes Prometheus counters for the conversation loop.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds all Prometheus metrics for the voice loop.
type Metrics struct {
	registry *prometheus.Registry

	Conversations   prometheus.Counter
	Turns           prometheus.Counter
	BackendRequests *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec
	State           *prometheus.GaugeVec
}

// States lists the label values of the state gauge.
var States = []string{"idle", "greeting", "listening", "thinking", "speaking"}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "ai_voice"
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Conversations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_total",
			Help:      "Wake word activations that started a conversation",
		}),
		Turns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "User utterances sent to the chat backend",
		}),
		BackendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Chat backend exchanges by outcome",
		}, []string{"backend", "status"}),
		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_duration_seconds",
			Help:      "Chat backend latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"backend"}),
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "1 for the state the conversation loop is in",
		}, []string{"state"}),
	}
	m.registry.MustRegister(m.Conversations, m.Turns, m.BackendRequests, m.BackendDuration, m.State)
	for _, s := range States {
		m.State.WithLabelValues(s).Set(0)
	}
	m.State.WithLabelValues("idle").Set(1)
	return m
}

// ObserveExchange records one chat backend call.
func (m *Metrics) ObserveExchange(backend string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.BackendRequests.WithLabelValues(backend, status).Inc()
	m.BackendDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// ObserveState moves the state gauge and counts conversations and turns.
func (m *Metrics) ObserveState(from, to string) {
	m.State.WithLabelValues(from).Set(0)
	m.State.WithLabelValues(to).Set(1)
	switch to {
	case "greeting":
		m.Conversations.Inc()
	case "thinking":
		m.Turns.Inc()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("📈 [Metrics] serving /metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

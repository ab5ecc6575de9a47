package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds all Prometheus metrics for the forecaster.
type Metrics struct {
	ObservationsTotal *prometheus.CounterVec // labels: outcome=buffered|predicted|rejected
	Phase             prometheus.Gauge       // 0=collecting, 1=trained, 2=failed

	TrainingsTotal   *prometheus.CounterVec // labels: result=ok|error
	TrainingDur      prometheus.Histogram
	TrainingSamples  prometheus.Gauge
	InferenceDur     prometheus.Histogram
	PredictionLow    prometheus.Gauge
	PredictionHigh   prometheus.Gauge
	ModelLoadsTotal  *prometheus.CounterVec // labels: result=hit|miss|error
	ModelSaveFailure prometheus.Counter
	ModelSaveDur     prometheus.Histogram

	FeedReconnects  prometheus.Counter
	CandlesWritten  prometheus.Counter
	SQLiteCommitDur prometheus.Histogram
}

// NewMetrics creates the forecaster metrics and registers them on reg.
// A nil reg falls back to the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ObservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecaster_observations_total",
			Help: "Observations handled by the lifecycle controller",
		}, []string{"outcome"}),
		Phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_phase",
			Help: "Controller phase (0=collecting, 1=trained, 2=failed)",
		}),

		TrainingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecaster_trainings_total",
			Help: "Training runs by result",
		}, []string{"result"}),
		TrainingDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecaster_training_duration_seconds",
			Help:    "Wall time of the one-shot training",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		TrainingSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_training_samples",
			Help: "Number of labelled samples used for training",
		}),
		InferenceDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecaster_inference_duration_seconds",
			Help:    "Model inference latency per observation",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		PredictionLow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_prediction_low",
			Help: "Latest predicted envelope low, in price units",
		}),
		PredictionHigh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_prediction_high",
			Help: "Latest predicted envelope high, in price units",
		}),
		ModelLoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecaster_model_loads_total",
			Help: "Model state lookups at startup by result",
		}, []string{"result"}),
		ModelSaveFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_model_save_failures_total",
			Help: "Model state saves that failed",
		}),
		ModelSaveDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecaster_model_save_duration_seconds",
			Help:    "Model state save latency",
			Buckets: prometheus.DefBuckets,
		}),

		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_feed_reconnects_total",
			Help: "Total WebSocket feed reconnection attempts",
		}),
		CandlesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_candles_recorded_total",
			Help: "Candles recorded to SQLite for later replay",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecaster_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.ObservationsTotal,
		m.Phase,
		m.TrainingsTotal,
		m.TrainingDur,
		m.TrainingSamples,
		m.InferenceDur,
		m.PredictionLow,
		m.PredictionHigh,
		m.ModelLoadsTotal,
		m.ModelSaveFailure,
		m.ModelSaveDur,
		m.FeedReconnects,
		m.CandlesWritten,
		m.SQLiteCommitDur,
	)

	return m
}

// HealthStatus is the state reported on /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	Phase           string
	Observations    int
	LastObservation time.Time
	FeedConnected   bool
	StoreBackend    string
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(storeBackend string) *HealthStatus {
	return &HealthStatus{
		Phase:        "collecting",
		StoreBackend: storeBackend,
		StartedAt:    time.Now(),
	}
}

// Observe records the controller state after an observation.
func (h *HealthStatus) Observe(phase string, count int, ts time.Time) {
	h.mu.Lock()
	h.Phase = phase
	h.Observations = count
	h.LastObservation = ts
	h.mu.Unlock()
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint. A failed controller reports 503.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if h.Phase == "failed" {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	lastObs := ""
	obsAge := ""
	if !h.LastObservation.IsZero() {
		lastObs = h.LastObservation.Format(time.RFC3339)
		obsAge = time.Since(h.LastObservation).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string `json:"status"`
		Uptime          string `json:"uptime"`
		Phase           string `json:"phase"`
		Observations    int    `json:"observations"`
		LastObservation string `json:"last_observation"`
		ObservationAge  string `json:"observation_age"`
		FeedConnected   bool   `json:"feed_connected"`
		StoreBackend    string `json:"store_backend"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Phase:           h.Phase,
		Observations:    h.Observations,
		LastObservation: lastObs,
		ObservationAge:  obsAge,
		FeedConnected:   h.FeedConnected,
		StoreBackend:    h.StoreBackend,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  zerolog.Logger
}

// NewServer creates a metrics and health server. gatherer may be nil to
// serve the default registry.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus, log zerolog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.With().Str("component", "metrics").Logger(),
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("server listening")
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("server error")
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rl1809/correlator/internal/adapter/broker"
	"github.com/rl1809/correlator/internal/adapter/producer"
	"github.com/rl1809/correlator/internal/core/domain"
	"github.com/rl1809/correlator/internal/core/service"
)

const maxAttemptLimit = 500

// Correlation is the operator-facing part of the correlation service.
type Correlation interface {
	Buffered(ctx context.Context) (domain.Pending, error)
	Reset(ctx context.Context) error
	RecentAttempts(ctx context.Context, limit int) ([]domain.Attempt, error)
}

type QueueController interface {
	Pause()
	Resume()
	Paused() bool
	Connected() bool
	Stats() []broker.Stats
}

type Triggerer interface {
	Trigger(ctx context.Context, t producer.Trigger) (producer.Response, error)
}

type HTTPHandler struct {
	correlation Correlation
	queues      QueueController
	producer    Triggerer
	readiness   *Readiness
	logger      *zap.Logger
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type QueueStatusResponse struct {
	Paused    bool           `json:"paused"`
	Connected bool           `json:"connected"`
	Consumers []broker.Stats `json:"consumers"`
}

type SideStatus struct {
	Present  bool `json:"present"`
	Count    int  `json:"count"`
	Attempts int  `json:"attempts"`
}

type BufferResponse struct {
	Customers SideStatus `json:"customers"`
	Products  SideStatus `json:"products"`
}

type AttemptResponse struct {
	ID            int64  `json:"id"`
	BatchNumber   string `json:"batch_number,omitempty"`
	CustomerCount int    `json:"customer_count"`
	ProductCount  int    `json:"product_count"`
	MergedCount   int    `json:"merged_count"`
	Outcome       string `json:"outcome"`
	ErrorMessage  string `json:"error_message,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func NewHTTPHandler(correlation Correlation, queues QueueController, producer Triggerer, readiness *Readiness, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		correlation: correlation,
		queues:      queues,
		producer:    producer,
		readiness:   readiness,
		logger:      logger.Named("http"),
	}
}

// Routes returns the HTTP API wrapped in request id and logging middleware.
func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /health/live", h.Live)
	mux.HandleFunc("GET /health/ready", h.Ready)

	mux.HandleFunc("GET /queue/status", h.QueueStatus)
	mux.HandleFunc("POST /queue/pause", h.PauseQueue)
	mux.HandleFunc("POST /queue/resume", h.ResumeQueue)

	mux.HandleFunc("POST /api/trigger/{name}", h.Trigger)
	mux.HandleFunc("GET /api/buffer", h.Buffer)
	mux.HandleFunc("POST /api/buffer/clear", h.ClearBuffer)
	mux.HandleFunc("GET /api/attempts", h.Attempts)

	mux.Handle("GET /metrics", promhttp.Handler())

	return WithRequestID(WithLogging(h.logger, mux))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *HTTPHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks, ok := h.readiness.Evaluate(r.Context())
	status, label := http.StatusOK, "ready"
	if !ok {
		status, label = http.StatusServiceUnavailable, "not_ready"
	}
	writeJSON(w, status, map[string]any{"status": label, "checks": checks})
}

func (h *HTTPHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, QueueStatusResponse{
		Paused:    h.queues.Paused(),
		Connected: h.queues.Connected(),
		Consumers: h.queues.Stats(),
	})
}

func (h *HTTPHandler) PauseQueue(w http.ResponseWriter, r *http.Request) {
	h.queues.Pause()
	h.logger.Info("queue consumption paused", zap.String("request_id", RequestIDFromContext(r.Context())))
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "queue consumption paused"})
}

func (h *HTTPHandler) ResumeQueue(w http.ResponseWriter, r *http.Request) {
	h.queues.Resume()
	h.logger.Info("queue consumption resumed", zap.String("request_id", RequestIDFromContext(r.Context())))
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "queue consumption resumed"})
}

// Trigger forwards to the producer and relays its status and JSON body.
func (h *HTTPHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	t, err := producer.ParseTrigger(r.PathValue("name"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, MessageResponse{Success: false, Message: err.Error()})
		return
	}

	resp, err := h.producer.Trigger(r.Context(), t)
	if err != nil {
		h.logger.Warn("producer trigger failed", zap.String("trigger", string(t)), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, MessageResponse{Success: false, Message: "producer unavailable"})
		return
	}
	writeJSON(w, resp.StatusCode, resp.Body)
}

func (h *HTTPHandler) Buffer(w http.ResponseWriter, r *http.Request) {
	pending, err := h.correlation.Buffered(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	var resp BufferResponse
	if c := pending.Customers; c != nil {
		resp.Customers = SideStatus{Present: true, Count: len(c.Records), Attempts: c.Attempts}
	}
	if p := pending.Products; p != nil {
		resp.Products = SideStatus{Present: true, Count: len(p.Records), Attempts: p.Attempts}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) ClearBuffer(w http.ResponseWriter, r *http.Request) {
	if err := h.correlation.Reset(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "buffer cleared"})
}

func (h *HTTPHandler) Attempts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxAttemptLimit {
			writeJSON(w, http.StatusBadRequest, MessageResponse{Success: false, Message: "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	attempts, err := h.correlation.RecentAttempts(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]AttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, AttemptResponse{
			ID:            a.ID,
			BatchNumber:   a.BatchNumber,
			CustomerCount: a.CustomerCount,
			ProductCount:  a.ProductCount,
			MergedCount:   a.MergedCount,
			Outcome:       string(a.Outcome),
			ErrorMessage:  a.ErrorMessage,
			CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	if errors.Is(err, service.ErrTransientIO) {
		status = http.StatusServiceUnavailable
		message = "buffer store unavailable"
	}

	h.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	writeJSON(w, status, MessageResponse{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sgtv/livestatus/internal/live"
	"github.com/sgtv/livestatus/internal/metrics"
	"github.com/sgtv/livestatus/internal/ratelimit"
)

// StatusResolver is the slice of the resolver the HTTP layer depends on.
type StatusResolver interface {
	Resolve(ctx context.Context, handles []string) map[string]live.Result
}

// Handler serves the public live-status endpoint plus the health probe.
type Handler struct {
	resolver StatusResolver
	limiter  ratelimit.Limiter
	logger   *slog.Logger
	metrics  *metrics.Recorder
	now      func() time.Time
}

// NewHandler wires the request orchestrator. The limiter may be nil, which
// disables admission control entirely.
func NewHandler(res StatusResolver, limiter ratelimit.Limiter, logger *slog.Logger, rec *metrics.Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		resolver: res,
		limiter:  limiter,
		logger:   logger.With(slog.String("agent", "http")),
		metrics:  rec,
		now:      time.Now,
	}
}

type channelStatus struct {
	Status string  `json:"status"`
	RoomID *string `json:"roomId"`
}

type liveStatusResponse struct {
	CheckedAt string                   `json:"checkedAt"`
	Channels  map[string]channelStatus `json:"channels"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ServeLiveStatus answers GET /live-status?channels=a,b. Admission control
// runs before query parsing so abusive clients pay for malformed requests
// too.
func (h *Handler) ServeLiveStatus(w http.ResponseWriter, r *http.Request) {
	start := h.now()

	if decision, limited := h.admit(r); limited {
		seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		h.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		h.metrics.ObserveRequest(http.StatusTooManyRequests, time.Since(start))
		return
	}

	handles := parseChannels(r.URL.Query().Get("channels"))
	if len(handles) == 0 {
		h.writeError(w, http.StatusBadRequest, "channels query parameter required")
		h.metrics.ObserveRequest(http.StatusBadRequest, time.Since(start))
		return
	}

	resolved := h.resolver.Resolve(r.Context(), handles)

	channels := make(map[string]channelStatus, len(resolved))
	for handle, result := range resolved {
		status := channelStatus{Status: string(result.Status)}
		if result.RoomID != "" {
			roomID := result.RoomID
			status.RoomID = &roomID
		}
		channels[handle] = status
	}

	h.writeJSON(w, http.StatusOK, liveStatusResponse{
		CheckedAt: h.now().UTC().Format(time.RFC3339),
		Channels:  channels,
	})
	h.metrics.ObserveRequest(http.StatusOK, time.Since(start))
}

// admit asks the limiter whether this client may proceed. A limiter backend
// failure admits the request; availability beats strict enforcement here.
func (h *Handler) admit(r *http.Request) (ratelimit.Decision, bool) {
	if h.limiter == nil {
		return ratelimit.Decision{Allowed: true}, false
	}
	ip := clientIP(r)
	decision, err := h.limiter.Admit(r.Context(), ip)
	if err != nil {
		h.metrics.ObserveAdmission(metrics.AdmissionFailOpen)
		h.logger.Warn("rate limiter unavailable, admitting request",
			slog.String("client", ip), slog.Any("error", err))
		return ratelimit.Decision{Allowed: true}, false
	}
	if !decision.Allowed {
		h.metrics.ObserveAdmission(metrics.AdmissionRejected)
		h.logger.Info("request rejected by rate limit",
			slog.String("client", ip),
			slog.Duration("retry_after", decision.RetryAfter))
		return decision, true
	}
	h.metrics.ObserveAdmission(metrics.AdmissionAllowed)
	return decision, false
}

// ServeOptions answers bare OPTIONS requests. Preflights carrying
// Access-Control-Request-Method are consumed by the CORS middleware before
// they reach this route.
func (h *Handler) ServeOptions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusNoContent)
}

// ServeHealth reports process liveness for orchestration probes.
func (h *Handler) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NotFound answers unknown paths with a JSON body so clients never have to
// parse two error shapes.
func (h *Handler) NotFound(w http.ResponseWriter, _ *http.Request) {
	start := h.now()
	h.writeError(w, http.StatusNotFound, "not found")
	h.metrics.ObserveRequest(http.StatusNotFound, time.Since(start))
}

// MethodNotAllowed rejects non-GET verbs on known paths.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	start := h.now()
	w.Header().Set("Allow", "GET, OPTIONS")
	h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	h.metrics.ObserveRequest(http.StatusMethodNotAllowed, time.Since(start))
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("response encode failed", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, message string) {
	h.writeJSON(w, code, errorResponse{Error: message})
}

// parseChannels splits the comma-separated channels value, trimming
// whitespace and dropping empty segments. Validation of individual handles
// happens downstream so one bad handle never fails the batch.
func parseChannels(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	handles := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		handles = append(handles, trimmed)
	}
	return handles
}

// clientIP picks the client identity for rate limiting: the first
// X-Forwarded-For hop when present, otherwise the socket peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

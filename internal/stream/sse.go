// Package stream serves live look angles as Server-Sent Events. Clients
// connect via GET /api/v1/stream/look and receive one batch per step with
// every observer's view of every satellite at that instant.
//
// SSE message format:
//
//	data: {"type":"look_batch","t":"2025-05-18T12:00:00Z","views":[...]}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","dataset_fetched_at":"...","tle_age_seconds":1800,...}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
// Reconnecting clients receive a fresh metadata message on each connection.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/zojak-ves/satview/internal/httputil"
	"github.com/zojak-ves/satview/internal/metrics"
	"github.com/zojak-ves/satview/internal/propagation"
	"github.com/zojak-ves/satview/internal/tle"
	"github.com/zojak-ves/satview/internal/tracking"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool
}

// Source produces the snapshots a stream sends. *propagation.Sweeper
// satisfies it.
type Source interface {
	SnapshotAt(ctx context.Context, t time.Time) (*propagation.Snapshot, error)
	Observers() []tracking.Observer
}

// Handler manages SSE streaming connections.
type Handler struct {
	source  Source
	store   *tle.Store
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a new streaming handler.
func NewHandler(source Source, store *tle.Store, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP < 1 {
		config.MaxConcurrentPerIP = 10
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		source:  source,
		store:   store,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP),
		logger:  logger,
		now:     time.Now,
	}
}

// HandleLook serves the SSE look angle stream.
// GET /api/v1/stream/look?step=5&observer=phoenix&visible_only=true
func (h *Handler) HandleLook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	step := 5
	if v := q.Get("step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			writeError(w, http.StatusBadRequest, "invalid step parameter, must be 1-60")
			return
		}
		step = n
	}

	visibleOnly := true
	if v := q.Get("visible_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid visible_only parameter")
			return
		}
		visibleOnly = b
	}

	observer := q.Get("observer")
	if observer != "" && !h.knownObserver(observer) {
		writeError(w, http.StatusBadRequest, "unknown observer "+strconv.Quote(observer))
		return
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	release, ok := h.limiter.tryAcquire(ip)
	if !ok {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.active(ip),
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.StreamConnected()
	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"step", step,
		"observer", observer,
	)

	ew := &eventWriter{w: w, logger: h.logger}
	defer func() {
		release()
		metrics.StreamDisconnected()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"messages_sent", ew.messages,
			"bytes_sent", ew.bytes,
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Long-lived: clear the server's WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	ew.flusher = flusher
	ew.rc = rc

	// Jittered retry interval (3-7s) so restarted servers are not hit by
	// every client at once.
	if err := ew.write("retry: %d\n\n", 3000+rand.Intn(4000)); err != nil {
		return
	}

	if err := ew.data(h.metadata()); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	ctx := r.Context()
	filter := viewFilter{observer: observer, visibleOnly: visibleOnly}
	send := func(t time.Time) bool {
		snap, err := h.source.SnapshotAt(ctx, t.UTC().Truncate(time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			metrics.IncStreamErrors("snapshot")
			h.logger.Debug("stream snapshot failed", "remote_ip", ip, "error", err)
			return true
		}
		if err := ew.data(buildBatchMessage(snap, filter)); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return false
		}
		return true
	}

	// First batch goes out immediately, the rest on the step ticker.
	if !send(h.now()) {
		return
	}

	ticker := time.NewTicker(time.Duration(step) * time.Second)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if !send(h.now()) {
				return
			}
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := ew.keepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func (h *Handler) knownObserver(name string) bool {
	for _, o := range h.source.Observers() {
		if o.Name == name {
			return true
		}
	}
	return false
}

func (h *Handler) metadata() metadataMessage {
	meta := metadataMessage{Type: "metadata", TLEAge: -1}
	for _, o := range h.source.Observers() {
		meta.Observers = append(meta.Observers, o.Name)
	}
	if ds := h.store.Get(); ds != nil {
		meta.FetchedAt = ds.FetchedAt.UTC().Format(time.RFC3339)
		meta.TLEAge = int(h.now().Sub(ds.FetchedAt).Seconds())
		meta.Satellites = len(ds.Satellites)
	}
	return meta
}

type viewFilter struct {
	observer    string // empty matches every observer
	visibleOnly bool
}

// buildBatchMessage formats a snapshot into the SSE batch payload. Views with
// degenerate geometry are dropped; their angles are not representable in JSON.
func buildBatchMessage(snap *propagation.Snapshot, f viewFilter) lookBatchMessage {
	msg := lookBatchMessage{
		Type:   "look_batch",
		T:      snap.Time.UTC().Format(time.RFC3339),
		Failed: snap.Failed,
		Views:  []viewPayload{},
	}
	for _, v := range snap.Views {
		if v.Degenerate != "" {
			continue
		}
		if f.observer != "" && v.Observer != f.observer {
			continue
		}
		if f.visibleOnly && !v.Visible {
			continue
		}
		msg.Views = append(msg.Views, viewPayload{
			Observer:  v.Observer,
			ID:        v.NORADID,
			Azimuth:   v.Look.AzimuthDeg(),
			Elevation: v.Look.ElevationDeg(),
			Range:     v.Look.Distance,
			Visible:   v.Visible,
		})
	}
	return msg
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// SSE message payload types.

type metadataMessage struct {
	Type       string   `json:"type"`
	FetchedAt  string   `json:"dataset_fetched_at,omitempty"`
	TLEAge     int      `json:"tle_age_seconds"`
	Satellites int      `json:"satellites"`
	Observers  []string `json:"observers"`
}

type lookBatchMessage struct {
	Type   string        `json:"type"`
	T      string        `json:"t"`
	Failed int           `json:"failed,omitempty"`
	Views  []viewPayload `json:"views"`
}

type viewPayload struct {
	Observer  string  `json:"observer"`
	ID        int     `json:"id"`
	Azimuth   float64 `json:"az"`
	Elevation float64 `json:"el"`
	Range     float64 `json:"range_km"`
	Visible   bool    `json:"visible"`
}

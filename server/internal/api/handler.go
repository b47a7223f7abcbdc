package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/trackrelay/trackrelay/pkg/wire"
	"github.com/trackrelay/trackrelay/server/internal/auth"
	"github.com/trackrelay/trackrelay/server/internal/store"
)

const defaultPointLimit = 100

// Options configures New.
type Options struct {
	// Secret is the expected bearer token. Empty disables authentication.
	Secret string
	// MaxBodyBytes limits the decoded request body.
	MaxBodyBytes int64
}

// Handler serves the collector routes.
type Handler struct {
	store   *store.Store
	maxBody int64
	mux     *http.ServeMux
}

// New creates a Handler over st and registers all routes.
func New(st *store.Store, opts Options) http.Handler {
	h := &Handler{store: st, maxBody: opts.MaxBodyBytes, mux: http.NewServeMux()}

	h.mux.Handle(wire.Path, auth.Bearer(opts.Secret, http.HandlerFunc(h.ingest)))
	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.Handle("/api/v1/devices", auth.Bearer(opts.Secret, http.HandlerFunc(h.listDevices)))
	h.mux.Handle("/api/v1/devices/", auth.Bearer(opts.Secret, http.HandlerFunc(h.getDevice)))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// ingest handles POST /locations.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body io.Reader = r.Body
	switch enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "gzip":
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid gzip body")
			return
		}
		defer zr.Close()
		body = zr
	default:
		jsonErr(w, http.StatusUnsupportedMediaType, "unsupported content encoding "+strconv.Quote(enc))
		return
	}

	data, err := io.ReadAll(io.LimitReader(body, h.maxBody+1))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if int64(len(data)) > h.maxBody {
		jsonErr(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	b, err := wire.Decode(data)
	if err != nil {
		slog.Debug("api: malformed batch", "remote", r.RemoteAddr, "err", err)
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if b.DeviceID == "" {
		jsonErr(w, http.StatusBadRequest, "device_id is required")
		return
	}

	held := h.store.Add(b)
	slog.Debug("api: batch stored",
		"device_id", b.DeviceID, "count", len(b.Samples), "held", held)
	w.WriteHeader(http.StatusCreated)
}

// health handles GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{Status: "ok", Devices: len(h.store.List())})
}

// listDevices handles GET /api/v1/devices.
func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tracks := h.store.List()
	out := make([]DeviceResponse, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, toDeviceResponse(t))
	}
	jsonResp(w, http.StatusOK, out)
}

// getDevice handles GET /api/v1/devices/{id}.
func (h *Handler) getDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/devices/")
	if id == "" {
		h.listDevices(w, r)
		return
	}

	limit := defaultPointLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	t, ok := h.store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "device not found")
		return
	}

	pts := t.Points
	if len(pts) > limit {
		pts = pts[len(pts)-limit:]
	}
	resp := DeviceDetailResponse{
		DeviceResponse: toDeviceResponse(t),
		Points:         make([]PointResponse, 0, len(pts)),
	}
	for _, p := range pts {
		resp.Points = append(resp.Points, toPointResponse(p))
	}
	jsonResp(w, http.StatusOK, resp)
}

// --- helpers ----------------------------------------------------------------

func toDeviceResponse(t store.Track) DeviceResponse {
	r := DeviceResponse{
		DeviceID:   t.DeviceID,
		LastSeen:   t.LastSeen.UTC().Format(time.RFC3339),
		PointCount: len(t.Points),
		Received:   t.Received,
		Batches:    t.Batches,
	}
	if t.Battery != wire.BatteryUnavailable {
		b := t.Battery
		r.Battery = &b
	}
	if last, ok := t.Last(); ok {
		p := toPointResponse(last)
		r.LastPosition = &p
	}
	return r
}

func toPointResponse(s wire.Sample) PointResponse {
	return PointResponse{
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Timestamp: s.Timestamp,
		Time:      s.Time().UTC().Format(time.RFC3339Nano),
	}
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}


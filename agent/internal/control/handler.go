package control

import (
	"encoding/json"
	"net/http"

	"github.com/trackrelay/trackrelay/agent/internal/flush"
)

// FlushResponse reports the result of a stop or flush request.
type FlushResponse struct {
	Requests    int    `json:"requests"`
	Delivered   int    `json:"delivered"`
	LastOutcome string `json:"last_outcome"`
	Error       string `json:"error,omitempty"`
	Pending     int    `json:"pending"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the control routes.
type Handler struct {
	ctrl *Controller
	mux  *http.ServeMux
}

// NewHandler registers all control routes. metrics and hub may be nil, in
// which case their routes are not mounted.
func NewHandler(ctrl *Controller, metrics http.Handler, hub *Hub) http.Handler {
	h := &Handler{ctrl: ctrl, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/status", h.status)
	h.mux.HandleFunc("/api/v1/start", h.start)
	h.mux.HandleFunc("/api/v1/stop", h.stop)
	h.mux.HandleFunc("/api/v1/flush", h.flush)
	if metrics != nil {
		h.mux.Handle("/metrics", metrics)
	}
	if hub != nil {
		h.mux.Handle("/ws/status", hub)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.ctrl.Status())
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.ctrl.StartUpdates()
	jsonResp(w, http.StatusOK, h.ctrl.Status())
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rep := h.ctrl.StopUpdates(r.Context())
	jsonResp(w, http.StatusOK, h.toFlushResponse(rep))
}

func (h *Handler) flush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rep := h.ctrl.Flush(r.Context())
	jsonResp(w, http.StatusOK, h.toFlushResponse(rep))
}

func (h *Handler) toFlushResponse(rep flush.Report) FlushResponse {
	out := FlushResponse{
		Requests:    rep.Requests,
		Delivered:   rep.Delivered,
		LastOutcome: rep.Last.Kind.String(),
		Pending:     h.ctrl.buf.Len(),
	}
	if rep.Err != nil {
		out.Error = rep.Err.Error()
	} else if rep.Last.Err != nil {
		out.Error = rep.Last.Err.Error()
	}
	return out
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

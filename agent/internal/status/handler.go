package status

import (
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldtrack/fieldtrack/agent/internal/identity"
	"github.com/fieldtrack/fieldtrack/agent/internal/shipper"
	"github.com/fieldtrack/fieldtrack/agent/internal/sweeper"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sources are the read-only views the handler reports. Nil fields are
// left out of the response.
type Sources struct {
	Buffered     func() int
	SpoolEntries func() (int, error)
	Shipper      func() shipper.Status
	LastSweep    func() sweeper.Result
	Identity     func() (*identity.CertStatus, error)
}

// Handler serves the status endpoints.
type Handler struct {
	src Sources
	mux *http.ServeMux
}

// New registers all routes. gatherer may be nil, in which case /metrics is
// not served.
func New(src Sources, gatherer prometheus.Gatherer) http.Handler {
	h := &Handler{src: src, mux: http.NewServeMux()}

	h.mux.HandleFunc("/healthz", h.healthz)
	h.mux.HandleFunc("/api/v1/status", h.status)
	if gatherer != nil {
		h.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok")) //nolint:errcheck
}

// status returns GET /api/v1/status.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := StatusResponse{GeneratedAt: time.Now().UTC()}
	if h.src.Buffered != nil {
		resp.Buffered = h.src.Buffered()
	}
	if h.src.SpoolEntries != nil {
		n, err := h.src.SpoolEntries()
		if err != nil {
			resp.SpoolError = err.Error()
		}
		resp.SpoolEntries = n
	}
	if h.src.Shipper != nil {
		resp.Shipper = h.src.Shipper()
	}
	if h.src.LastSweep != nil {
		if res := h.src.LastSweep(); !res.At.IsZero() {
			resp.LastSweep = toSweepResponse(res)
		}
	}
	if h.src.Identity != nil {
		// A missing certificate is not an error for this endpoint.
		if cs, err := h.src.Identity(); err == nil {
			resp.Identity = cs
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

func toSweepResponse(res sweeper.Result) *SweepResponse {
	out := &SweepResponse{Sent: res.Sent, Remaining: res.Remaining, At: res.At.UTC()}
	if res.Stopped != nil {
		out.Stopped = res.Stopped.Error()
	}
	return out
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

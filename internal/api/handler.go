package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/flashboot/fastboot-mtd/internal/fastboot"
)

// Handler exposes the flashing backend over HTTP. Every operation response
// carries the fastboot wire status alongside the HTTP status code, so
// protocol clients and humans read the same outcome.
type Handler struct {
	backend      *fastboot.Backend
	maxImageSize int64
}

// New creates an HTTP handler around a flashing backend. maxImageSize bounds
// the accepted image payload in bytes.
func New(backend *fastboot.Backend, maxImageSize int64) *Handler {
	return &Handler{
		backend:      backend,
		maxImageSize: maxImageSize,
	}
}

// Routes registers the API endpoints on a router.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/api/health", h.HealthHandler).Methods("GET")
	r.HandleFunc("/api/partitions", h.ListHandler).Methods("GET")
	r.HandleFunc("/api/partitions/{name}", h.InfoHandler).Methods("GET")
	r.HandleFunc("/api/partitions/{name}/erase", h.EraseHandler).Methods("POST")
	r.HandleFunc("/api/partitions/{name}/flash", h.FlashHandler).Methods("POST")
}

type operationResponse struct {
	Response  string              `json:"response"`
	Partition *fastboot.Partition `json:"partition,omitempty"`
	Written   int64               `json:"written,omitempty"`
}

type listResponse struct {
	Partitions []fastboot.Partition `json:"partitions"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("api: failed to encode response: %v", err)
	}
}

// statusFor maps backend failures to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, fastboot.ErrPartitionNotGiven):
		return http.StatusBadRequest
	case errors.Is(err, fastboot.ErrPartitionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// HealthHandler provides a health check endpoint
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, `{"status": "ok"}`)
}

// ListHandler returns descriptors for every known partition
func (h *Handler) ListHandler(w http.ResponseWriter, r *http.Request) {
	parts, err := h.backend.Partitions()
	if err != nil {
		log.Errorf("api: partition listing failed: %v", err)
		writeJSON(w, statusFor(err), operationResponse{Response: fastboot.Response(err)})
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Partitions: parts})
}

// InfoHandler returns the descriptor for one partition
func (h *Handler) InfoHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	p, err := h.backend.GetPartInfo(name)
	if err != nil {
		writeJSON(w, statusFor(err), operationResponse{Response: fastboot.Response(err)})
		return
	}
	writeJSON(w, http.StatusOK, operationResponse{
		Response:  fastboot.Response(nil),
		Partition: &p,
	})
}

// EraseHandler erases an entire partition
func (h *Handler) EraseHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	log.Infof("api: erase request for %q", name)

	if err := h.backend.Erase(name); err != nil {
		writeJSON(w, statusFor(err), operationResponse{Response: fastboot.Response(err)})
		return
	}
	writeJSON(w, http.StatusOK, operationResponse{Response: fastboot.Response(nil)})
}

// FlashHandler writes an image to a partition. The request body is the image
// payload; raw and sparse formats are auto-detected by the backend.
func (h *Handler) FlashHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	r.Body = http.MaxBytesReader(w, r.Body, h.maxImageSize)
	image, err := io.ReadAll(r.Body)
	if err != nil {
		log.Errorf("api: failed to read image payload: %v", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "image too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "error reading upload", http.StatusBadRequest)
		return
	}

	log.Infof("api: flash request for %q (%d bytes)", name, len(image))

	if err := h.backend.Flash(name, image); err != nil {
		writeJSON(w, statusFor(err), operationResponse{Response: fastboot.Response(err)})
		return
	}
	writeJSON(w, http.StatusOK, operationResponse{
		Response: fastboot.Response(nil),
		Written:  int64(len(image)),
	})
}

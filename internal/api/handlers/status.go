package handlers

import (
	"net/http"

	"github.com/eargollo/archiver/internal/scheduler"
)

// StatusHandler handles GET /api/status.
type StatusHandler struct {
	Ingest  *IngestHandler
	Sched   *scheduler.Scheduler
	Version string
}

type statusResponse struct {
	Version string              `json:"version"`
	Ingest  ingestStatus        `json:"ingest"`
	Jobs    []scheduler.JobInfo `json:"jobs"`
}

// ServeHTTP returns the system status as JSON.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version: h.Version,
		Ingest:  h.Ingest.status(),
		Jobs:    []scheduler.JobInfo{},
	}
	if h.Sched != nil {
		resp.Jobs = h.Sched.Jobs()
	}
	writeJSON(w, http.StatusOK, resp)
}

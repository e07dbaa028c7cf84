package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/eargollo/archiver/internal/ingest"
	"github.com/eargollo/archiver/internal/pathlist"
)

// IngestHandler starts batches and reports on the current one.
type IngestHandler struct {
	Manager *ingest.Manager
	Walkers int
}

type ingestRequest struct {
	Paths   []string `json:"paths"`
	Expand  bool     `json:"expand"`
	Exclude []string `json:"exclude"`
}

type resultInfo struct {
	ingest.Result
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type ingestStatus struct {
	Batch    *ingest.Batch     `json:"batch"`
	Progress ingest.PollResult `json:"progress"`
	Result   *resultInfo       `json:"result"`
}

// Start handles POST /api/profiles/{id}/ingest.
func (h *IngestHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := profileID(w, r)
	if !ok {
		return
	}
	var body ingestRequest
	if !decodeBody(w, r, &body) {
		return
	}

	paths := body.Paths
	if body.Expand {
		var err error
		paths, err = pathlist.Expand(r.Context(), body.Paths, body.Exclude, h.Walkers)
		if err != nil {
			writeError(w, http.StatusBadRequest, "EXPAND_FAILED", err.Error())
			return
		}
	}

	batch, _, err := h.Manager.Start(context.Background(), id, paths, "api")
	switch {
	case errors.Is(err, ingest.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "INGEST_ALREADY_RUNNING", "An ingestion batch is already in progress")
		return
	case errors.Is(err, ingest.ErrUnknownProfile):
		writeError(w, http.StatusNotFound, "PROFILE_NOT_FOUND", "Profile not found")
		return
	case errors.Is(err, ingest.ErrEmptyBatch):
		writeError(w, http.StatusBadRequest, "EMPTY_BATCH", "No paths to ingest")
		return
	case err != nil:
		slog.Error("ingest: start", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start ingestion")
		return
	}
	writeJSON(w, http.StatusAccepted, batch)
}

// Current handles GET /api/ingest. Each request is one poll of the session.
func (h *IngestHandler) Current(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status())
}

func (h *IngestHandler) status() ingestStatus {
	// Poll first: a completed session implies the manager has already
	// cleared the batch and recorded its result.
	progress := h.Manager.Session().Poll()
	st := ingestStatus{
		Batch:    h.Manager.ActiveBatch(),
		Progress: progress,
	}
	if st.Batch == nil {
		if res, ok := h.Manager.LastResult(); ok {
			info := &resultInfo{Result: res, Status: res.Status()}
			if res.Err != nil {
				info.Error = res.Err.Error()
			}
			st.Result = info
		}
	}
	return st
}

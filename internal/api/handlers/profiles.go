package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/eargollo/archiver/internal/store"
)

// ProfileStore is the part of the record store the profile endpoints read
// and write.
type ProfileStore interface {
	CreateProfile(ctx context.Context, name string) (store.Profile, error)
	GetProfile(ctx context.Context, id int64) (store.Profile, error)
	ListProfiles(ctx context.Context) ([]store.Profile, error)
	ListFiles(ctx context.Context, profileID int64) ([]store.FileRecord, error)
}

// ProfilesHandler handles profile and file listing endpoints.
type ProfilesHandler struct {
	Store ProfileStore
}

// Create handles POST /api/profiles.
func (h *ProfilesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	p, err := h.Store.CreateProfile(r.Context(), body.Name)
	if err != nil {
		if errors.Is(err, store.ErrConstraint) {
			writeError(w, http.StatusUnprocessableEntity, "INVALID_PROFILE", err.Error())
			return
		}
		slog.Error("profiles: create", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create profile")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// List handles GET /api/profiles.
func (h *ProfilesHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.Store.ListProfiles(r.Context())
	if err != nil {
		slog.Error("profiles: list", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list profiles")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[store.Profile]{Items: profiles, Total: len(profiles)})
}

// Get handles GET /api/profiles/{id}.
func (h *ProfilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := profileID(w, r)
	if !ok {
		return
	}
	p, err := h.Store.GetProfile(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "PROFILE_NOT_FOUND", "Profile not found")
			return
		}
		slog.Error("profiles: get", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Files handles GET /api/profiles/{id}/files.
func (h *ProfilesHandler) Files(w http.ResponseWriter, r *http.Request) {
	id, ok := profileID(w, r)
	if !ok {
		return
	}
	if _, err := h.Store.GetProfile(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "PROFILE_NOT_FOUND", "Profile not found")
			return
		}
		slog.Error("profiles: files lookup", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load profile")
		return
	}

	files, err := h.Store.ListFiles(r.Context(), id)
	if err != nil {
		slog.Error("profiles: files", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[store.FileRecord]{Items: files, Total: len(files)})
}

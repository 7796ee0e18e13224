package interceptor

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jonwraymond/sitecache/observe"
)

// Admin API routes.
const (
	AdminStatusPath = "/-/sw/status"
	AdminUpdatePath = "/-/sw/update"
)

// StoreReport describes one named store.
type StoreReport struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
	Size    string `json:"size"`
}

// StatusReport is the body of the status endpoint.
type StatusReport struct {
	Status
	Stores []StoreReport `json:"stores"`
}

// UpdateRequest is the body of the update endpoint.
type UpdateRequest struct {
	Version string `json:"version"`
}

type adminHandler struct {
	reg    *Registration
	logger observe.Logger
}

// AdminHandler serves the registration's status and update endpoints.
func AdminHandler(reg *Registration, logger observe.Logger) http.Handler {
	if logger == nil {
		logger = observe.NopLogger()
	}
	h := &adminHandler{reg: reg, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+AdminStatusPath, h.status)
	mux.HandleFunc("POST "+AdminUpdatePath, h.update)
	return mux
}

func (h *adminHandler) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storage := h.reg.Storage()

	names, err := storage.Keys(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	report := StatusReport{Status: h.reg.Status(), Stores: make([]StoreReport, 0, len(names))}
	for _, name := range names {
		store, err := storage.Open(ctx, name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		keys, err := store.Keys(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		sr := StoreReport{Name: name, Entries: len(keys)}
		for _, key := range keys {
			entry, ok, err := store.Match(ctx, key)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if ok {
				sr.Bytes += int64(entry.Size())
			}
		}
		sr.Size = humanize.Bytes(uint64(sr.Bytes))
		report.Stores = append(report.Stores, sr)
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *adminHandler) update(w http.ResponseWriter, r *http.Request) {
	var body UpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	body.Version = strings.TrimSpace(body.Version)
	if body.Version == "" {
		writeError(w, http.StatusBadRequest, ErrMissingVersion)
		return
	}

	if _, err := h.reg.Update(r.Context(), body.Version); err != nil {
		h.logger.Warn(r.Context(), "update failed",
			observe.Field{Key: "version", Value: body.Version},
			observe.Field{Key: "error", Value: err},
		)
		switch {
		case errors.Is(err, ErrSameVersion):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, ErrRegistrationDone):
			writeError(w, http.StatusServiceUnavailable, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	h.logger.Info(r.Context(), "update applied", observe.Field{Key: "version", Value: body.Version})
	writeJSON(w, http.StatusOK, h.reg.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

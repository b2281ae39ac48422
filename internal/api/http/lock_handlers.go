package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taskboard/taskboard/internal/domain/lock"
)

type lockRequest struct {
	HolderID   uuid.UUID `json:"holder_id"`
	HolderName string    `json:"holder_name"`
}

func (s *Server) acquirePositionLock(w http.ResponseWriter, r *http.Request) {
	s.acquireLock(w, r, lock.KindPosition)
}

func (s *Server) releasePositionLock(w http.ResponseWriter, r *http.Request) {
	s.releaseLock(w, r, lock.KindPosition)
}

func (s *Server) acquireContentLock(w http.ResponseWriter, r *http.Request) {
	s.acquireLock(w, r, lock.KindContent)
}

func (s *Server) releaseContentLock(w http.ResponseWriter, r *http.Request) {
	s.releaseLock(w, r, lock.KindContent)
}

// acquireLock maps a denied grant to 409 so clients can show who holds the
// lock without treating contention as a transport failure.
func (s *Server) acquireLock(w http.ResponseWriter, r *http.Request, kind lock.Kind) {
	taskID, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid taskId")
		return
	}
	var req lockRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.HolderID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "holder_id is required")
		return
	}

	grant, err := s.lockSvc.Acquire(r.Context(), taskID, kind, lock.Holder{ID: req.HolderID, Name: req.HolderName})
	if err != nil {
		s.respondLockError(w, err)
		return
	}
	if !grant.Granted {
		respondJSON(w, http.StatusConflict, grant)
		return
	}
	respondJSON(w, http.StatusOK, grant)
}

func (s *Server) releaseLock(w http.ResponseWriter, r *http.Request, kind lock.Kind) {
	taskID, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid taskId")
		return
	}
	var req lockRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.HolderID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "holder_id is required")
		return
	}

	released, err := s.lockSvc.Release(r.Context(), taskID, kind, req.HolderID)
	if err != nil {
		s.respondLockError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"released": released})
}

func (s *Server) getLock(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid taskId")
		return
	}
	kind := lock.Kind(chi.URLParam(r, "kind"))
	l, err := s.lockSvc.Get(r.Context(), taskID, kind)
	if err != nil {
		s.respondLockError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, l)
}

func (s *Server) respondLockError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lock.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, lock.ErrInvalidKind):
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

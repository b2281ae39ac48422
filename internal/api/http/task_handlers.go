package httpapi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	appReorder "github.com/taskboard/taskboard/internal/application/reorder"
	appTask "github.com/taskboard/taskboard/internal/application/task"
	"github.com/taskboard/taskboard/internal/domain/lock"
	"github.com/taskboard/taskboard/internal/domain/task"
)

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedBy   string `json:"created_by"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}

	t, err := s.taskSvc.Create(r.Context(), appTask.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      task.Status(req.Status),
		Actor:       req.CreatedBy,
	})
	if err != nil {
		s.respondTaskError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.taskSvc.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid taskId")
		return
	}
	t, err := s.taskSvc.Get(r.Context(), id)
	if err != nil {
		s.respondTaskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

type updateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) updateTaskContent(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid taskId")
		return
	}
	var req updateTaskRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}

	t, err := s.taskSvc.UpdateContent(r.Context(), appTask.UpdateContentInput{
		TaskID:      id,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		s.respondTaskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid taskId")
		return
	}
	if err := s.taskSvc.Delete(r.Context(), id); err != nil {
		s.respondTaskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": true})
}

type moveTaskRequest struct {
	Status string `json:"status"`
}

func (s *Server) moveTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid taskId")
		return
	}
	var req moveTaskRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}

	t, err := s.taskSvc.Move(r.Context(), id, task.Status(req.Status))
	if err != nil {
		s.respondTaskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

type reorderRequest struct {
	HolderID   uuid.UUID   `json:"holder_id"`
	HolderName string      `json:"holder_name"`
	OrderedIDs []uuid.UUID `json:"ordered_ids"`
}

func (s *Server) reorderColumn(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid taskId")
		return
	}
	var req reorderRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.HolderID == uuid.Nil || len(req.OrderedIDs) == 0 {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "holder_id and ordered_ids are required")
		return
	}

	holder := lock.Holder{ID: req.HolderID, Name: req.HolderName}
	positions, err := s.reorderSvc.Reorder(r.Context(), id, holder, req.OrderedIDs)
	if err != nil {
		switch {
		case errors.Is(err, appReorder.ErrLockNotHeld):
			respondError(w, http.StatusConflict, "LOCK_NOT_HELD", "position lock is not held by this holder")
		case errors.Is(err, appReorder.ErrIncompleteOrdering):
			respondError(w, http.StatusBadRequest, "INCOMPLETE_ORDERING", "ordered_ids must cover the column exactly once")
		default:
			s.respondTaskError(w, err)
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}

func (s *Server) respondTaskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, task.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, task.ErrInvalidStatus), errors.Is(err, task.ErrEmptyTitle):
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	appLock "github.com/taskboard/taskboard/internal/application/lock"
	appReorder "github.com/taskboard/taskboard/internal/application/reorder"
	appTask "github.com/taskboard/taskboard/internal/application/task"
	"github.com/taskboard/taskboard/internal/domain/event"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	taskSvc    *appTask.Service
	lockSvc    *appLock.Service
	reorderSvc *appReorder.Coordinator
	sseHub     event.Hub
}

func NewServer(taskSvc *appTask.Service, lockSvc *appLock.Service, reorderSvc *appReorder.Coordinator, sseHub event.Hub) *Server {
	return &Server{
		taskSvc:    taskSvc,
		lockSvc:    lockSvc,
		reorderSvc: reorderSvc,
		sseHub:     sseHub,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.createTask)
			r.Get("/", s.listTasks)
			r.Get("/{taskId}", s.getTask)
			r.Patch("/{taskId}", s.updateTaskContent)
			r.Delete("/{taskId}", s.deleteTask)
			r.Post("/{taskId}/move", s.moveTask)
			r.Post("/{taskId}/reorder", s.reorderColumn)

			r.Get("/{taskId}/locks/{kind}", s.getLock)
			r.Post("/{taskId}/lock", s.acquirePositionLock)
			r.Post("/{taskId}/unlock", s.releasePositionLock)
			r.Post("/{taskId}/edit-lock", s.acquireContentLock)
			r.Post("/{taskId}/edit-unlock", s.releaseContentLock)
		})

		r.Get("/events", s.sseEndpoint)
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// sseEndpoint streams board events to one observer. The SSE timeout is why
// the router-level timeout middleware is absent: event streams stay open
// for the life of the browser tab.
func (s *Server) sseEndpoint(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "client_id required")
		return
	}
	var userPtr *string
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		userPtr = &userID
	}

	client := event.NewSSEClient(clientID, userPtr)
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(client)

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Send an initial comment to flush headers and keep the connection alive.
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case msg := <-client.MessageChan:
			if msg == nil {
				return
			}
			payload, _ := json.Marshal(msg)
			_, _ = w.Write([]byte("event: "))
			_, _ = w.Write([]byte(msg.Event))
			_, _ = w.Write([]byte("\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTaskDecodesServerTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/tasks", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["title"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"taskId":     uuid.New().String(),
			"title":      "hello",
			"status":     "TODO",
			"orderIndex": 1,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	task, err := c.CreateTask(context.Background(), "hello", "", "TODO")
	require.NoError(t, err)
	assert.Equal(t, "hello", task.Title)
	assert.NotEqual(t, uuid.Nil, task.TaskID)
}

func TestAcquireLockDeniedIsNotAnError(t *testing.T) {
	rival := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"granted": false,
			"lockedBy": map[string]string{
				"id":   rival.String(),
				"name": "rival",
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	result, err := c.AcquireLock(context.Background(), uuid.New(), Holder{ID: uuid.New(), Name: "me"})
	require.NoError(t, err)
	assert.False(t, result.Granted)
	require.NotNil(t, result.LockedBy)
	assert.Equal(t, "rival", result.LockedBy.Name)
	assert.Equal(t, rival, result.LockedBy.ID)
}

func TestStatusErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"bad request", http.StatusBadRequest, ErrBadRequest},
		{"conflict", http.StatusConflict, ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "X",
					"message": "details",
				})
			}))
			defer srv.Close()

			c := New(srv.URL, nil)
			_, err := c.GetTask(context.Background(), uuid.New())
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "details")
		})
	}
}

func TestDeleteTaskNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	assert.NoError(t, c.DeleteTask(context.Background(), uuid.New()))
}

package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mtarasov/notable/internal/storage"
	"github.com/stretchr/testify/require"
)

func TestTaskCreateDefaultsStatus(t *testing.T) {
	harness := newResourceTestHarness(t)
	accessToken := harness.accessTokenFor(t, "user-1")

	created := harness.do(t, http.MethodPost, "/api/tasks", accessToken, gin.H{"title": "write report"})
	require.Equal(t, http.StatusCreated, created.Code)

	var createdTask taskResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &createdTask))
	require.Equal(t, storage.TaskStatusNotStarted, createdTask.Status)
	require.False(t, createdTask.Done)
	require.False(t, createdTask.StartDate.IsZero(), "start date must default to now")
}

func TestTaskCreateValidation(t *testing.T) {
	harness := newResourceTestHarness(t)
	accessToken := harness.accessTokenFor(t, "user-1")

	missingTitle := harness.do(t, http.MethodPost, "/api/tasks", accessToken, gin.H{"description": "no title"})
	require.Equal(t, http.StatusBadRequest, missingTitle.Code)

	badStatus := harness.do(t, http.MethodPost, "/api/tasks", accessToken, gin.H{"title": "t", "status": "paused"})
	require.Equal(t, http.StatusBadRequest, badStatus.Code)
	require.Contains(t, badStatus.Body.String(), "invalid status")
}

func TestTaskStatusTransitionDerivesDone(t *testing.T) {
	harness := newResourceTestHarness(t)
	accessToken := harness.accessTokenFor(t, "user-1")

	created := harness.do(t, http.MethodPost, "/api/tasks", accessToken, gin.H{"title": "ship release", "status": storage.TaskStatusActive})
	require.Equal(t, http.StatusCreated, created.Code)

	var createdTask taskResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &createdTask))
	require.False(t, createdTask.Done)

	completed := harness.do(t, http.MethodPut, "/api/tasks/"+createdTask.ID, accessToken, gin.H{"status": storage.TaskStatusCompleted})
	require.Equal(t, http.StatusOK, completed.Code)

	var completedTask taskResponse
	require.NoError(t, json.Unmarshal(completed.Body.Bytes(), &completedTask))
	require.True(t, completedTask.Done)

	invalid := harness.do(t, http.MethodPut, "/api/tasks/"+createdTask.ID, accessToken, gin.H{"status": "abandoned"})
	require.Equal(t, http.StatusBadRequest, invalid.Code)
}

func TestTaskDeleteAndScoping(t *testing.T) {
	harness := newResourceTestHarness(t)
	aliceToken := harness.accessTokenFor(t, "alice")
	bobToken := harness.accessTokenFor(t, "bob")

	created := harness.do(t, http.MethodPost, "/api/tasks", aliceToken, gin.H{"title": "mine"})
	require.Equal(t, http.StatusCreated, created.Code)

	var createdTask taskResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &createdTask))

	foreignDelete := harness.do(t, http.MethodDelete, "/api/tasks/"+createdTask.ID, bobToken, nil)
	require.Equal(t, http.StatusNotFound, foreignDelete.Code)
	require.Contains(t, foreignDelete.Body.String(), "task not found")

	ownDelete := harness.do(t, http.MethodDelete, "/api/tasks/"+createdTask.ID, aliceToken, nil)
	require.Equal(t, http.StatusOK, ownDelete.Code)

	listed := harness.do(t, http.MethodGet, "/api/tasks", aliceToken, nil)
	require.Equal(t, http.StatusOK, listed.Code)

	var tasks []taskResponse
	require.NoError(t, json.Unmarshal(listed.Body.Bytes(), &tasks))
	require.Empty(t, tasks)
}

package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mtarasov/notable/internal/storage"
	"go.uber.org/zap"
)

type createTaskRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
}

type updateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	EndDate     *time.Time `json:"endDate"`
}

type taskResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartDate   time.Time  `json:"startDate"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Status      string     `json:"status"`
	Done        bool       `json:"done"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// MountTaskRoutes registers the task CRUD handlers. The group must already
// carry the auth middleware.
func MountTaskRoutes(router gin.IRouter, tasks storage.TaskStore, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	router.GET("", func(contextGin *gin.Context) {
		identity, found := identityFrom(contextGin)
		if !found {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authorization required"})
			return
		}
		listed, listErr := tasks.ListTasks(contextGin, identity.UserID)
		if listErr != nil {
			logger.Error("task list failed",
				zap.String("code", "api.tasks.list_error"),
				zap.Error(listErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "server error"})
			return
		}
		responses := make([]taskResponse, 0, len(listed))
		for index := range listed {
			responses = append(responses, taskResponseFrom(&listed[index]))
		}
		contextGin.JSON(http.StatusOK, responses)
	})

	router.POST("", func(contextGin *gin.Context) {
		identity, found := identityFrom(contextGin)
		if !found {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authorization required"})
			return
		}
		var inbound createTaskRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid input"})
			return
		}
		status := inbound.Status
		if status == "" {
			status = storage.TaskStatusNotStarted
		}
		if !storage.ValidTaskStatus(status) {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid status"})
			return
		}
		now := time.Now().UTC()
		startDate := now
		if inbound.StartDate != nil {
			startDate = inbound.StartDate.UTC()
		}
		task := &storage.Task{
			ID:          uuid.NewString(),
			UserID:      identity.UserID,
			Title:       inbound.Title,
			Description: inbound.Description,
			StartDate:   startDate,
			EndDate:     inbound.EndDate,
			Status:      status,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if createErr := tasks.CreateTask(contextGin, task); createErr != nil {
			logger.Error("task create failed",
				zap.String("code", "api.tasks.create_error"),
				zap.Error(createErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "server error"})
			return
		}
		contextGin.JSON(http.StatusCreated, taskResponseFrom(task))
	})

	router.PUT("/:id", func(contextGin *gin.Context) {
		identity, found := identityFrom(contextGin)
		if !found {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authorization required"})
			return
		}
		var inbound updateTaskRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid input"})
			return
		}
		if inbound.Status != nil && !storage.ValidTaskStatus(*inbound.Status) {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid status"})
			return
		}
		patch := storage.TaskPatch{
			Title:       inbound.Title,
			Description: inbound.Description,
			Status:      inbound.Status,
			EndDate:     inbound.EndDate,
		}
		task, updateErr := tasks.UpdateTask(contextGin, identity.UserID, contextGin.Param("id"), patch, time.Now().UTC())
		if updateErr != nil {
			writeTaskError(contextGin, logger, "api.tasks.update_error", updateErr)
			return
		}
		contextGin.JSON(http.StatusOK, taskResponseFrom(task))
	})

	router.DELETE("/:id", func(contextGin *gin.Context) {
		identity, found := identityFrom(contextGin)
		if !found {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authorization required"})
			return
		}
		if deleteErr := tasks.DeleteTask(contextGin, identity.UserID, contextGin.Param("id")); deleteErr != nil {
			writeTaskError(contextGin, logger, "api.tasks.delete_error", deleteErr)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"message": "deleted"})
	})
}

func writeTaskError(contextGin *gin.Context, logger *zap.Logger, code string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "task not found"})
		return
	}
	logger.Error("task operation failed", zap.String("code", code), zap.Error(err))
	contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "server error"})
}

func taskResponseFrom(task *storage.Task) taskResponse {
	return taskResponse{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		StartDate:   task.StartDate,
		EndDate:     task.EndDate,
		Status:      task.Status,
		Done:        task.Done,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mtarasov/notable/internal/storage"
	"go.uber.org/zap"
)

type createNoteRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Pinned  bool     `json:"pinned"`
	Tags    []string `json:"tags"`
}

type updateNoteRequest struct {
	Title   *string   `json:"title"`
	Content *string   `json:"content"`
	Pinned  *bool     `json:"pinned"`
	Tags    *[]string `json:"tags"`
}

type noteResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Pinned    bool      `json:"pinned"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MountNoteRoutes registers the note CRUD handlers. The group must already
// carry the auth middleware.
func MountNoteRoutes(router gin.IRouter, notes storage.NoteStore, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	router.GET("", func(contextGin *gin.Context) {
		identity, found := identityFrom(contextGin)
		if !found {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authorization required"})
			return
		}
		filter := noteFilterFromQuery(contextGin)
		listed, listErr := notes.ListNotes(contextGin, identity.UserID, filter)
		if listErr != nil {
			logger.Error("note list failed",
				zap.String("code", "api.notes.list_error"),
				zap.Error(listErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "server error"})
			return
		}
		responses := make([]noteResponse, 0, len(listed))
		for index := range listed {
			responses = append(responses, noteResponseFrom(&listed[index]))
		}
		contextGin.JSON(http.StatusOK, responses)
	})

	router.POST("", func(contextGin *gin.Context) {
		identity, found := identityFrom(contextGin)
		if !found {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authorization required"})
			return
		}
		var inbound createNoteRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid input"})
			return
		}
		now := time.Now().UTC()
		tags := inbound.Tags
		if tags == nil {
			tags = []string{}
		}
		note := &storage.Note{
			ID:        uuid.NewString(),
			UserID:    identity.UserID,
			Title:     strings.TrimSpace(inbound.Title),
			Content:   strings.TrimSpace(inbound.Content),
			Pinned:    inbound.Pinned,
			Tags:      tags,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if createErr := notes.CreateNote(contextGin, note); createErr != nil {
			logger.Error("note create failed",
				zap.String("code", "api.notes.create_error"),
				zap.Error(createErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "server error"})
			return
		}
		contextGin.JSON(http.StatusCreated, noteResponseFrom(note))
	})

	router.GET("/:id", func(contextGin *gin.Context) {
		identity, found := identityFrom(contextGin)
		if !found {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authorization required"})
			return
		}
		note, getErr := notes.NoteByID(contextGin, identity.UserID, contextGin.Param("id"))
		if getErr != nil {
			writeNoteError(contextGin, logger, "api.notes.get_error", getErr)
			return
		}
		contextGin.JSON(http.StatusOK, noteResponseFrom(note))
	})

	router.PUT("/:id", func(contextGin *gin.Context) {
		identity, found := identityFrom(contextGin)
		if !found {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authorization required"})
			return
		}
		var inbound updateNoteRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid input"})
			return
		}
		patch := storage.NotePatch{
			Title:   inbound.Title,
			Content: inbound.Content,
			Pinned:  inbound.Pinned,
			Tags:    inbound.Tags,
		}
		note, updateErr := notes.UpdateNote(contextGin, identity.UserID, contextGin.Param("id"), patch, time.Now().UTC())
		if updateErr != nil {
			writeNoteError(contextGin, logger, "api.notes.update_error", updateErr)
			return
		}
		contextGin.JSON(http.StatusOK, noteResponseFrom(note))
	})

	router.DELETE("/:id", func(contextGin *gin.Context) {
		identity, found := identityFrom(contextGin)
		if !found {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authorization required"})
			return
		}
		if deleteErr := notes.DeleteNote(contextGin, identity.UserID, contextGin.Param("id")); deleteErr != nil {
			writeNoteError(contextGin, logger, "api.notes.delete_error", deleteErr)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"message": "deleted"})
	})
}

func noteFilterFromQuery(contextGin *gin.Context) storage.NoteFilter {
	filter := storage.NoteFilter{Tag: contextGin.Query("tag")}
	if pinnedValue, present := contextGin.GetQuery("pinned"); present {
		pinned := pinnedValue == "true" || pinnedValue == "1"
		filter.Pinned = &pinned
	}
	if limitValue, parseErr := strconv.Atoi(contextGin.Query("limit")); parseErr == nil {
		filter.Limit = limitValue
	}
	if skipValue, parseErr := strconv.Atoi(contextGin.Query("skip")); parseErr == nil {
		filter.Offset = skipValue
	}
	return filter
}

func writeNoteError(contextGin *gin.Context, logger *zap.Logger, code string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "note not found"})
		return
	}
	logger.Error("note operation failed", zap.String("code", code), zap.Error(err))
	contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "server error"})
}

func noteResponseFrom(note *storage.Note) noteResponse {
	return noteResponse{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		Pinned:    note.Pinned,
		Tags:      note.Tags,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}
}

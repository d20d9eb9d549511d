package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mtarasov/notable/internal/storage"
	"github.com/mtarasov/notable/internal/token"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type resourceTestHarness struct {
	router *gin.Engine
	notes  *storage.MemoryNoteStore
	tasks  *storage.MemoryTaskStore
	tokens *token.Service
}

func newResourceTestHarness(t *testing.T) resourceTestHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := newAuthTestService(t, nil)
	notes := storage.NewMemoryNoteStore()
	tasks := storage.NewMemoryTaskStore()

	router := gin.New()
	noteGroup := router.Group("/api/notes", RequireAuth(tokens))
	MountNoteRoutes(noteGroup, notes, zap.NewNop())
	taskGroup := router.Group("/api/tasks", RequireAuth(tokens))
	MountTaskRoutes(taskGroup, tasks, zap.NewNop())
	return resourceTestHarness{router: router, notes: notes, tasks: tasks, tokens: tokens}
}

func (harness resourceTestHarness) accessTokenFor(t *testing.T, userID string) string {
	t.Helper()
	accessToken, mintErr := harness.tokens.MintAccessToken(token.Identity{ID: userID})
	require.NoError(t, mintErr)
	return accessToken
}

func (harness resourceTestHarness) do(t *testing.T, method, path, accessToken string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		encoded, marshalErr := json.Marshal(payload)
		require.NoError(t, marshalErr)
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(method, path, body)
	request.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		request.Header.Set("Authorization", "Bearer "+accessToken)
	}
	harness.router.ServeHTTP(recorder, request)
	return recorder
}

func TestNoteRoutesRequireAuth(t *testing.T) {
	harness := newResourceTestHarness(t)

	unauthenticated := harness.do(t, http.MethodGet, "/api/notes", "", nil)
	require.Equal(t, http.StatusUnauthorized, unauthenticated.Code)
}

func TestNoteCRUDLifecycle(t *testing.T) {
	harness := newResourceTestHarness(t)
	accessToken := harness.accessTokenFor(t, "user-1")

	created := harness.do(t, http.MethodPost, "/api/notes", accessToken, gin.H{
		"title":   "  groceries  ",
		"content": "milk, eggs",
		"pinned":  true,
		"tags":    []string{"home"},
	})
	require.Equal(t, http.StatusCreated, created.Code)

	var createdNote noteResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &createdNote))
	require.Equal(t, "groceries", createdNote.Title, "title must be trimmed")
	require.True(t, createdNote.Pinned)

	fetched := harness.do(t, http.MethodGet, "/api/notes/"+createdNote.ID, accessToken, nil)
	require.Equal(t, http.StatusOK, fetched.Code)

	updated := harness.do(t, http.MethodPut, "/api/notes/"+createdNote.ID, accessToken, gin.H{"pinned": false})
	require.Equal(t, http.StatusOK, updated.Code)

	var updatedNote noteResponse
	require.NoError(t, json.Unmarshal(updated.Body.Bytes(), &updatedNote))
	require.False(t, updatedNote.Pinned)
	require.Equal(t, "groceries", updatedNote.Title, "unset fields must survive a partial update")

	retitled := harness.do(t, http.MethodPut, "/api/notes/"+createdNote.ID, accessToken, gin.H{"title": "  errands  "})
	require.Equal(t, http.StatusOK, retitled.Code)

	var retitledNote noteResponse
	require.NoError(t, json.Unmarshal(retitled.Body.Bytes(), &retitledNote))
	require.Equal(t, "errands", retitledNote.Title, "updated title must be stored trimmed")

	deleted := harness.do(t, http.MethodDelete, "/api/notes/"+createdNote.ID, accessToken, nil)
	require.Equal(t, http.StatusOK, deleted.Code)

	missing := harness.do(t, http.MethodGet, "/api/notes/"+createdNote.ID, accessToken, nil)
	require.Equal(t, http.StatusNotFound, missing.Code)
	require.Contains(t, missing.Body.String(), "note not found")
}

func TestNoteListHonorsQueryFilters(t *testing.T) {
	harness := newResourceTestHarness(t)
	accessToken := harness.accessTokenFor(t, "user-1")

	pinned := harness.do(t, http.MethodPost, "/api/notes", accessToken, gin.H{"title": "pinned", "pinned": true, "tags": []string{"work"}})
	require.Equal(t, http.StatusCreated, pinned.Code)
	loose := harness.do(t, http.MethodPost, "/api/notes", accessToken, gin.H{"title": "loose", "tags": []string{"home"}})
	require.Equal(t, http.StatusCreated, loose.Code)

	pinnedOnly := harness.do(t, http.MethodGet, "/api/notes?pinned=true", accessToken, nil)
	require.Equal(t, http.StatusOK, pinnedOnly.Code)

	var pinnedNotes []noteResponse
	require.NoError(t, json.Unmarshal(pinnedOnly.Body.Bytes(), &pinnedNotes))
	require.Len(t, pinnedNotes, 1)
	require.Equal(t, "pinned", pinnedNotes[0].Title)

	tagged := harness.do(t, http.MethodGet, "/api/notes?tag=home", accessToken, nil)
	require.Equal(t, http.StatusOK, tagged.Code)

	var taggedNotes []noteResponse
	require.NoError(t, json.Unmarshal(tagged.Body.Bytes(), &taggedNotes))
	require.Len(t, taggedNotes, 1)
	require.Equal(t, "loose", taggedNotes[0].Title)
}

func TestNotesAreScopedPerUser(t *testing.T) {
	harness := newResourceTestHarness(t)
	aliceToken := harness.accessTokenFor(t, "alice")
	bobToken := harness.accessTokenFor(t, "bob")

	created := harness.do(t, http.MethodPost, "/api/notes", aliceToken, gin.H{"title": "private"})
	require.Equal(t, http.StatusCreated, created.Code)

	var createdNote noteResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &createdNote))

	foreign := harness.do(t, http.MethodGet, "/api/notes/"+createdNote.ID, bobToken, nil)
	require.Equal(t, http.StatusNotFound, foreign.Code)

	foreignDelete := harness.do(t, http.MethodDelete, "/api/notes/"+createdNote.ID, bobToken, nil)
	require.Equal(t, http.StatusNotFound, foreignDelete.Code)

	bobList := harness.do(t, http.MethodGet, "/api/notes", bobToken, nil)
	require.Equal(t, http.StatusOK, bobList.Code)

	var bobNotes []noteResponse
	require.NoError(t, json.Unmarshal(bobList.Body.Bytes(), &bobNotes))
	require.Empty(t, bobNotes)
}

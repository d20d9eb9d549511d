package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mtarasov/notable/internal/session"
	"github.com/mtarasov/notable/internal/storage"
	"github.com/mtarasov/notable/internal/token"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type authTestHarness struct {
	router *gin.Engine
	users  *storage.MemoryUserStore
	tokens *token.Service
}

func newAuthTestHarness(t *testing.T) authTestHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := newAuthTestService(t, nil)
	users := storage.NewMemoryUserStore()
	sessions := session.NewManager(users, tokens, zap.NewNop(), session.NewCounterMetrics(), session.Config{
		MaxRefreshTokens: 8,
		BcryptCost:       bcrypt.MinCost,
	})

	router := gin.New()
	MountAuthRoutes(router, sessions, zap.NewNop())
	return authTestHarness{router: router, users: users, tokens: tokens}
}

func (harness authTestHarness) postJSON(t *testing.T, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, marshalErr := json.Marshal(payload)
	require.NoError(t, marshalErr)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	harness.router.ServeHTTP(recorder, request)
	return recorder
}

type authEnvelope struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"user"`
	Tokens struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	} `json:"tokens"`
}

func TestAuthLifecycle(t *testing.T) {
	harness := newAuthTestHarness(t)

	registered := harness.postJSON(t, "/auth/register", gin.H{
		"username": "alice",
		"email":    " Alice@Example.com ",
		"password": "longenough123",
	})
	require.Equal(t, http.StatusCreated, registered.Code, "padded email must still register")

	var registerBody authEnvelope
	require.NoError(t, json.Unmarshal(registered.Body.Bytes(), &registerBody))
	require.Equal(t, "alice@example.com", registerBody.User.Email, "stored email must be trimmed and lowercased")
	require.NotEmpty(t, registerBody.Tokens.RefreshToken)

	loggedIn := harness.postJSON(t, "/auth/login", gin.H{
		"email":    "ALICE@example.com ",
		"password": "longenough123",
	})
	require.Equal(t, http.StatusOK, loggedIn.Code)

	var loginBody authEnvelope
	require.NoError(t, json.Unmarshal(loggedIn.Body.Bytes(), &loginBody))
	require.NotEmpty(t, loginBody.Tokens.RefreshToken)

	refreshed := harness.postJSON(t, "/auth/refresh", gin.H{"refreshToken": loginBody.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, refreshed.Code)

	var rotatedPair struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(refreshed.Body.Bytes(), &rotatedPair))
	require.NotEmpty(t, rotatedPair.AccessToken)
	require.NotEqual(t, loginBody.Tokens.RefreshToken, rotatedPair.RefreshToken)

	replayed := harness.postJSON(t, "/auth/refresh", gin.H{"refreshToken": loginBody.Tokens.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, replayed.Code)
	require.Contains(t, replayed.Body.String(), "refresh token not recognized")

	loggedOut := harness.postJSON(t, "/auth/logout", gin.H{"refreshToken": rotatedPair.RefreshToken})
	require.Equal(t, http.StatusOK, loggedOut.Code)
	require.Contains(t, loggedOut.Body.String(), "logged out")
}

func TestRegisterValidationAndConflict(t *testing.T) {
	harness := newAuthTestHarness(t)

	missingEmail := harness.postJSON(t, "/auth/register", gin.H{"username": "alice", "password": "longenough123"})
	require.Equal(t, http.StatusBadRequest, missingEmail.Code)

	malformedEmail := harness.postJSON(t, "/auth/register", gin.H{
		"username": "alice",
		"email":    "not-an-email",
		"password": "longenough123",
	})
	require.Equal(t, http.StatusBadRequest, malformedEmail.Code)

	shortPassword := harness.postJSON(t, "/auth/register", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, shortPassword.Code)

	created := harness.postJSON(t, "/auth/register", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "longenough123",
	})
	require.Equal(t, http.StatusCreated, created.Code)

	duplicate := harness.postJSON(t, "/auth/register", gin.H{
		"username": "alice2",
		"email":    "alice@example.com",
		"password": "longenough123",
	})
	require.Equal(t, http.StatusConflict, duplicate.Code)
	require.Contains(t, duplicate.Body.String(), "user already exists")
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	harness := newAuthTestHarness(t)

	created := harness.postJSON(t, "/auth/register", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "longenough123",
	})
	require.Equal(t, http.StatusCreated, created.Code)

	wrongPassword := harness.postJSON(t, "/auth/login", gin.H{
		"email":    "alice@example.com",
		"password": "wrongpassword",
	})
	require.Equal(t, http.StatusUnauthorized, wrongPassword.Code)

	unknownUser := harness.postJSON(t, "/auth/login", gin.H{
		"email":    "nobody@example.com",
		"password": "longenough123",
	})
	require.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	require.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String(),
		"credential failures must be indistinguishable")
}

func TestRefreshRejectsForgedToken(t *testing.T) {
	harness := newAuthTestHarness(t)

	forged := harness.postJSON(t, "/auth/refresh", gin.H{"refreshToken": "not-a-token"})
	require.Equal(t, http.StatusUnauthorized, forged.Code)
	require.Contains(t, forged.Body.String(), "invalid or expired refresh token")

	missing := harness.postJSON(t, "/auth/refresh", gin.H{})
	require.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestLogoutWithGarbageTokenSucceeds(t *testing.T) {
	harness := newAuthTestHarness(t)

	loggedOut := harness.postJSON(t, "/auth/logout", gin.H{"refreshToken": "garbage"})
	require.Equal(t, http.StatusOK, loggedOut.Code)
	require.Contains(t, loggedOut.Body.String(), "logged out")
}

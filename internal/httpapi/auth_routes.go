package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mtarasov/notable/internal/session"
	"github.com/mtarasov/notable/internal/token"
	"go.uber.org/zap"
)

// Email format is checked by the session manager after normalization, not by
// a binding tag: a tag would validate the raw body and reject padded input
// such as " A@Example.com " that normalizes to a valid address.
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// MountAuthRoutes registers /auth/register, /auth/login, /auth/refresh, and
// /auth/logout on the router.
func MountAuthRoutes(router gin.IRouter, sessions *session.Manager, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	router.POST("/auth/register", func(contextGin *gin.Context) {
		var inbound registerRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid input"})
			return
		}
		userView, tokenPair, registerErr := sessions.Register(contextGin, inbound.Username, inbound.Email, inbound.Password)
		if registerErr != nil {
			switch {
			case errors.Is(registerErr, session.ErrConflict):
				contextGin.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": "user already exists"})
			case errors.Is(registerErr, session.ErrInvalidInput):
				contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid input"})
			default:
				logger.Error("register failed",
					zap.String("code", "api.auth.register_error"),
					zap.Error(registerErr))
				contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "server error"})
			}
			return
		}
		contextGin.JSON(http.StatusCreated, gin.H{"user": userView, "tokens": tokenPair})
	})

	router.POST("/auth/login", func(contextGin *gin.Context) {
		var inbound loginRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid input"})
			return
		}
		userView, tokenPair, loginErr := sessions.Login(contextGin, inbound.Email, inbound.Password)
		if loginErr != nil {
			if errors.Is(loginErr, session.ErrAuthFailed) {
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid credentials"})
				return
			}
			logger.Error("login failed",
				zap.String("code", "api.auth.login_error"),
				zap.Error(loginErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "server error"})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"user": userView, "tokens": tokenPair})
	})

	router.POST("/auth/refresh", func(contextGin *gin.Context) {
		var inbound refreshRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "refresh token required"})
			return
		}
		tokenPair, rotateErr := sessions.Rotate(contextGin, inbound.RefreshToken)
		if rotateErr != nil {
			switch {
			case errors.Is(rotateErr, session.ErrReuseDetected):
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "refresh token not recognized"})
			case errors.Is(rotateErr, token.ErrTokenExpired), errors.Is(rotateErr, token.ErrTokenInvalid):
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired refresh token"})
			case errors.Is(rotateErr, session.ErrAuthFailed):
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid refresh token"})
			default:
				logger.Error("refresh failed",
					zap.String("code", "api.auth.refresh_error"),
					zap.Error(rotateErr))
				contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "server error"})
			}
			return
		}
		contextGin.JSON(http.StatusOK, tokenPair)
	})

	router.POST("/auth/logout", func(contextGin *gin.Context) {
		var inbound refreshRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "refresh token required"})
			return
		}
		if logoutErr := sessions.Logout(contextGin, inbound.RefreshToken); logoutErr != nil {
			logger.Error("logout failed",
				zap.String("code", "api.auth.logout_error"),
				zap.Error(logoutErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "server error"})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"message": "logged out"})
	})
}

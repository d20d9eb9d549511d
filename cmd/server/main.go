package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mtarasov/notable/internal/httpapi"
	"github.com/mtarasov/notable/internal/session"
	"github.com/mtarasov/notable/internal/storage"
	"github.com/mtarasov/notable/internal/token"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "notable",
		Short:   "Notes and tasks API with JWT sessions and rotating refresh tokens",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("database_url", "", "Database URL (postgres:// or sqlite://; leave empty for in-memory stores)")
	rootCmd.Flags().String("access_token_secret", "", "HS256 signing secret for access tokens")
	rootCmd.Flags().String("refresh_token_secret", "", "HS256 signing secret for refresh tokens")
	rootCmd.Flags().Duration("access_token_ttl", 15*time.Minute, "Access token TTL")
	rootCmd.Flags().Duration("refresh_token_ttl", 30*24*time.Hour, "Refresh token TTL")
	rootCmd.Flags().Int("max_refresh_tokens_per_user", 8, "Bound on concurrent sessions per user; oldest are evicted first")
	rootCmd.Flags().Int("bcrypt_cost", 12, "bcrypt work factor for password hashing")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("database_url", rootCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("access_token_secret", rootCmd.Flags().Lookup("access_token_secret"))
	_ = viper.BindPFlag("refresh_token_secret", rootCmd.Flags().Lookup("refresh_token_secret"))
	_ = viper.BindPFlag("access_token_ttl", rootCmd.Flags().Lookup("access_token_ttl"))
	_ = viper.BindPFlag("refresh_token_ttl", rootCmd.Flags().Lookup("refresh_token_ttl"))
	_ = viper.BindPFlag("max_refresh_tokens_per_user", rootCmd.Flags().Lookup("max_refresh_tokens_per_user"))
	_ = viper.BindPFlag("bcrypt_cost", rootCmd.Flags().Lookup("bcrypt_cost"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))

	viper.AutomaticEnv()

	return rootCmd
}

const (
	tokenIssuer = "notable-auth"

	configCodeMissingAccessSecret  = "config.missing_access_token_secret"
	configCodeMissingRefreshSecret = "config.missing_refresh_token_secret"
	configCodeIdenticalSecrets     = "config.identical_token_secrets"
	configCodeInvalidAccessTTL     = "config.invalid_access_token_ttl"
	configCodeInvalidRefreshTTL    = "config.invalid_refresh_token_ttl"
	configCodeUninitializedServer  = "config.uninitialized_server_config"
	configCodeInvalidSessionBound  = "config.invalid_max_refresh_tokens"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

// ServerConfig aggregates everything the run command wires into the token
// service and session manager. It is constructed once at startup; business
// code never reads viper.
type ServerConfig struct {
	AccessTokenSecret       []byte
	RefreshTokenSecret      []byte
	AccessTokenTTL          time.Duration
	RefreshTokenTTL         time.Duration
	MaxRefreshTokensPerUser int
	BcryptCost              int
}

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads and validates the startup configuration. Missing
// secrets refuse to start; the service must never run unsigned.
func LoadServerConfig() (ServerConfig, error) {
	accessSecret := viper.GetString("access_token_secret")
	if accessSecret == "" {
		return ServerConfig{}, configError(configCodeMissingAccessSecret, "access_token_secret must be provided")
	}

	refreshSecret := viper.GetString("refresh_token_secret")
	if refreshSecret == "" {
		return ServerConfig{}, configError(configCodeMissingRefreshSecret, "refresh_token_secret must be provided")
	}

	if accessSecret == refreshSecret {
		return ServerConfig{}, configError(configCodeIdenticalSecrets, "access and refresh token secrets must differ")
	}

	accessTTL := viper.GetDuration("access_token_ttl")
	if accessTTL <= 0 {
		return ServerConfig{}, configError(configCodeInvalidAccessTTL, "access_token_ttl must be greater than zero")
	}

	refreshTTL := viper.GetDuration("refresh_token_ttl")
	if refreshTTL <= 0 {
		return ServerConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_token_ttl must be greater than zero")
	}

	maxRefreshTokens := viper.GetInt("max_refresh_tokens_per_user")
	if maxRefreshTokens <= 0 {
		return ServerConfig{}, configError(configCodeInvalidSessionBound, "max_refresh_tokens_per_user must be greater than zero")
	}

	bcryptCost := viper.GetInt("bcrypt_cost")
	if bcryptCost <= 0 {
		bcryptCost = 12
	}

	return ServerConfig{
		AccessTokenSecret:       []byte(accessSecret),
		RefreshTokenSecret:      []byte(refreshSecret),
		AccessTokenTTL:          accessTTL,
		RefreshTokenTTL:         refreshTTL,
		MaxRefreshTokensPerUser: maxRefreshTokens,
		BcryptCost:              bcryptCost,
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServer, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	databaseURL := viper.GetString("database_url")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	tokenService, tokenErr := token.NewService(token.Config{
		AccessSecret:  serverConfig.AccessTokenSecret,
		RefreshSecret: serverConfig.RefreshTokenSecret,
		AccessTTL:     serverConfig.AccessTokenTTL,
		RefreshTTL:    serverConfig.RefreshTokenTTL,
		Issuer:        tokenIssuer,
	})
	if tokenErr != nil {
		return tokenErr
	}

	var userStore storage.UserStore
	var noteStore storage.NoteStore
	var taskStore storage.TaskStore

	if databaseURL != "" {
		database, openErr := storage.Open(context.Background(), databaseURL)
		if openErr != nil {
			return openErr
		}
		userStore = database.Users()
		noteStore = database.Notes()
		taskStore = database.Tasks()
		logger.Info("using persistent stores", zap.String("driver", database.Driver()))
	} else {
		userStore = storage.NewMemoryUserStore()
		noteStore = storage.NewMemoryNoteStore()
		taskStore = storage.NewMemoryTaskStore()
		logger.Info("using in-memory stores")
	}

	metricsRecorder := session.NewCounterMetrics()
	sessionManager := session.NewManager(userStore, tokenService, logger, metricsRecorder, session.Config{
		MaxRefreshTokens: serverConfig.MaxRefreshTokensPerUser,
		BcryptCost:       serverConfig.BcryptCost,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := httpapi.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"ok": true, "ts": time.Now().UTC().Unix()})
	})

	apiGroup := router.Group("/api")
	httpapi.MountAuthRoutes(apiGroup, sessionManager, logger)

	notesGroup := apiGroup.Group("/notes")
	notesGroup.Use(httpapi.RequireAuth(tokenService))
	httpapi.MountNoteRoutes(notesGroup, noteStore, logger)

	tasksGroup := apiGroup.Group("/tasks")
	tasksGroup.Use(httpapi.RequireAuth(tokenService))
	httpapi.MountTaskRoutes(tasksGroup, taskStore, logger)

	router.NoRoute(func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusNotFound, gin.H{"message": "not found", "path": contextGin.Request.URL.Path})
	})

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}

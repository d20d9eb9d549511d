package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mtarasov/notable/internal/storage"
	"github.com/mtarasov/notable/internal/token"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minimumPasswordLength = 6

// inputValidator checks the normalized email, so padded-but-valid addresses
// pass while genuinely malformed ones are rejected.
var inputValidator = validator.New()

// UserView is the public shape of a user; it never carries the password hash.
type UserView struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
}

// TokenPair bundles a freshly minted access and refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Config configures the session manager.
type Config struct {
	MaxRefreshTokens int
	BcryptCost       int
}

// Manager owns the refresh-token lifecycle: append on login, rotate on
// refresh, prune on overflow, revoke on logout and on reuse detection.
type Manager struct {
	users            storage.UserStore
	tokens           *token.Service
	logger           *zap.Logger
	metrics          MetricsRecorder
	clock            token.Clock
	maxRefreshTokens int
	bcryptCost       int
}

// NewManager constructs a session manager.
func NewManager(users storage.UserStore, tokens *token.Service, logger *zap.Logger, metrics MetricsRecorder, configuration Config) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	maxRefreshTokens := configuration.MaxRefreshTokens
	if maxRefreshTokens <= 0 {
		maxRefreshTokens = 8
	}
	bcryptCost := configuration.BcryptCost
	if bcryptCost <= 0 {
		bcryptCost = 12
	}
	return &Manager{
		users:            users,
		tokens:           tokens,
		logger:           logger,
		metrics:          metrics,
		clock:            token.NewSystemClock(),
		maxRefreshTokens: maxRefreshTokens,
		bcryptCost:       bcryptCost,
	}
}

// WithClock overrides the clock; tests use it to control token timestamps.
func (manager *Manager) WithClock(clock token.Clock) *Manager {
	manager.clock = clock
	return manager
}

// Register creates a user and performs the implicit initial login so the
// response carries usable tokens.
func (manager *Manager) Register(ctx context.Context, username string, email string, password string) (UserView, TokenPair, error) {
	normalizedEmail := normalizeEmail(email)
	trimmedUsername := strings.TrimSpace(username)
	if len(password) < minimumPasswordLength {
		return UserView{}, TokenPair{}, fmt.Errorf("session.register: %w", ErrInvalidInput)
	}
	if inputValidator.Var(normalizedEmail, "required,email") != nil {
		return UserView{}, TokenPair{}, fmt.Errorf("session.register: %w", ErrInvalidInput)
	}

	_, lookupErr := manager.users.UserByEmailOrUsername(ctx, normalizedEmail, trimmedUsername)
	if lookupErr == nil {
		manager.metrics.Increment(MetricRegisterConflict)
		return UserView{}, TokenPair{}, fmt.Errorf("session.register: %w", ErrConflict)
	}
	if !errors.Is(lookupErr, storage.ErrNotFound) {
		return UserView{}, TokenPair{}, fmt.Errorf("session.register: %w", lookupErr)
	}

	passwordHash, hashErr := bcrypt.GenerateFromPassword([]byte(password), manager.bcryptCost)
	if hashErr != nil {
		return UserView{}, TokenPair{}, fmt.Errorf("session.register.hash: %w", hashErr)
	}

	now := manager.clock.Now()
	user := &storage.User{
		ID:           uuid.NewString(),
		Email:        normalizedEmail,
		Username:     trimmedUsername,
		PasswordHash: string(passwordHash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if createErr := manager.users.CreateUser(ctx, user); createErr != nil {
		if errors.Is(createErr, storage.ErrDuplicate) {
			manager.metrics.Increment(MetricRegisterConflict)
			return UserView{}, TokenPair{}, fmt.Errorf("session.register: %w", ErrConflict)
		}
		return UserView{}, TokenPair{}, fmt.Errorf("session.register: %w", createErr)
	}

	pair, issueErr := manager.issuePair(ctx, user)
	if issueErr != nil {
		return UserView{}, TokenPair{}, issueErr
	}

	manager.metrics.Increment(MetricRegisterSuccess)
	manager.logger.Info("user registered",
		zap.String("code", "session.register.success"),
		zap.String("user_id", user.ID))
	return viewOf(user), pair, nil
}

// Login verifies credentials and issues a fresh token pair. Unknown email
// and wrong password are indistinguishable to the caller.
func (manager *Manager) Login(ctx context.Context, email string, password string) (UserView, TokenPair, error) {
	normalizedEmail := normalizeEmail(email)

	user, lookupErr := manager.users.UserByEmail(ctx, normalizedEmail)
	if lookupErr != nil {
		if errors.Is(lookupErr, storage.ErrNotFound) {
			manager.metrics.Increment(MetricLoginFailure)
			return UserView{}, TokenPair{}, fmt.Errorf("session.login: %w", ErrAuthFailed)
		}
		return UserView{}, TokenPair{}, fmt.Errorf("session.login: %w", lookupErr)
	}

	if compareErr := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); compareErr != nil {
		manager.metrics.Increment(MetricLoginFailure)
		manager.logger.Warn("login rejected",
			zap.String("code", "session.login.failed"),
			zap.String("user_id", user.ID))
		return UserView{}, TokenPair{}, fmt.Errorf("session.login: %w", ErrAuthFailed)
	}

	pair, issueErr := manager.issuePair(ctx, user)
	if issueErr != nil {
		return UserView{}, TokenPair{}, issueErr
	}

	manager.metrics.Increment(MetricLoginSuccess)
	return viewOf(user), pair, nil
}

// Rotate exchanges a valid refresh token for a new pair, invalidating the
// presented token. A validly signed token that is absent from the user's
// sequence is treated as a theft signal: the whole sequence is revoked.
func (manager *Manager) Rotate(ctx context.Context, presentedToken string) (TokenPair, error) {
	claims, verifyErr := manager.tokens.VerifyRefreshToken(presentedToken)
	if verifyErr != nil {
		manager.metrics.Increment(MetricRotateRejected)
		return TokenPair{}, verifyErr
	}

	user, lookupErr := manager.users.UserByID(ctx, claims.Subject)
	if lookupErr != nil {
		if errors.Is(lookupErr, storage.ErrNotFound) {
			manager.metrics.Increment(MetricRotateRejected)
			return TokenPair{}, fmt.Errorf("session.rotate: %w", ErrAuthFailed)
		}
		return TokenPair{}, fmt.Errorf("session.rotate: %w", lookupErr)
	}

	newRefreshToken, mintRefreshErr := manager.tokens.MintRefreshToken(identityOf(user))
	if mintRefreshErr != nil {
		return TokenPair{}, fmt.Errorf("session.rotate: %w", mintRefreshErr)
	}

	replaced, replaceErr := manager.users.ReplaceRefreshToken(ctx, user.ID, presentedToken, newRefreshToken, manager.clock.Now(), manager.maxRefreshTokens)
	if replaceErr != nil {
		return TokenPair{}, fmt.Errorf("session.rotate: %w", replaceErr)
	}
	if !replaced {
		if clearErr := manager.users.ClearRefreshTokens(ctx, user.ID); clearErr != nil {
			return TokenPair{}, fmt.Errorf("session.rotate: %w", clearErr)
		}
		manager.metrics.Increment(MetricRotateReuse)
		manager.logger.Warn("refresh token reuse detected, all sessions revoked",
			zap.String("code", "session.rotate.reuse_detected"),
			zap.String("user_id", user.ID))
		return TokenPair{}, fmt.Errorf("session.rotate: %w", ErrReuseDetected)
	}

	newAccessToken, mintAccessErr := manager.tokens.MintAccessToken(identityOf(user))
	if mintAccessErr != nil {
		return TokenPair{}, fmt.Errorf("session.rotate: %w", mintAccessErr)
	}

	manager.metrics.Increment(MetricRotateSuccess)
	return TokenPair{AccessToken: newAccessToken, RefreshToken: newRefreshToken}, nil
}

// Logout removes the presented refresh token from its subject's sequence.
// It is idempotent: garbage input, expired tokens, and unknown subjects all
// succeed so callers cannot probe for session existence.
func (manager *Manager) Logout(ctx context.Context, presentedToken string) error {
	subject, decodeErr := manager.tokens.DecodeSubject(presentedToken)
	if decodeErr != nil || subject == "" {
		manager.metrics.Increment(MetricLogoutNoop)
		return nil
	}
	if removeErr := manager.users.RemoveRefreshToken(ctx, subject, presentedToken); removeErr != nil {
		return fmt.Errorf("session.logout: %w", removeErr)
	}
	manager.metrics.Increment(MetricLogoutSuccess)
	return nil
}

func (manager *Manager) issuePair(ctx context.Context, user *storage.User) (TokenPair, error) {
	identity := identityOf(user)
	accessToken, accessErr := manager.tokens.MintAccessToken(identity)
	if accessErr != nil {
		return TokenPair{}, fmt.Errorf("session.issue_pair: %w", accessErr)
	}
	refreshToken, refreshErr := manager.tokens.MintRefreshToken(identity)
	if refreshErr != nil {
		return TokenPair{}, fmt.Errorf("session.issue_pair: %w", refreshErr)
	}
	if appendErr := manager.users.AppendRefreshToken(ctx, user.ID, refreshToken, manager.clock.Now(), manager.maxRefreshTokens); appendErr != nil {
		return TokenPair{}, fmt.Errorf("session.issue_pair: %w", appendErr)
	}
	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func identityOf(user *storage.User) token.Identity {
	return token.Identity{
		ID:       user.ID,
		Email:    user.Email,
		Username: user.Username,
	}
}

func viewOf(user *storage.User) UserView {
	return UserView{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims are embedded in access tokens handed to API clients.
type AccessClaims struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims carry only the registered claim set. Refresh tokens
// deliberately omit email and username so a leaked token exposes nothing
// beyond the subject id.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// Config configures the token service. Access and refresh secrets must
// differ in deployment so an access token can never be replayed as a
// refresh token.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Clock         Clock
}

// Service mints and verifies HS256 access and refresh tokens.
type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	clock         Clock
}

// NewService validates the configuration and constructs a Service. Missing
// secrets are a startup-fatal misconfiguration, not a per-request failure.
func NewService(configuration Config) (*Service, error) {
	if len(configuration.AccessSecret) == 0 {
		return nil, fmt.Errorf("token.new: %w", errMissingAccessSecret)
	}
	if len(configuration.RefreshSecret) == 0 {
		return nil, fmt.Errorf("token.new: %w", errMissingRefreshSecret)
	}
	if configuration.AccessTTL <= 0 {
		return nil, fmt.Errorf("token.new: %w", errInvalidAccessTTL)
	}
	if configuration.RefreshTTL <= 0 {
		return nil, fmt.Errorf("token.new: %w", errInvalidRefreshTTL)
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Service{
		accessSecret:  configuration.AccessSecret,
		refreshSecret: configuration.RefreshSecret,
		accessTTL:     configuration.AccessTTL,
		refreshTTL:    configuration.RefreshTTL,
		issuer:        configuration.Issuer,
		clock:         clock,
	}, nil
}

// MintAccessToken signs an access token for the identity descriptor,
// embedding email and username when the descriptor carries them.
func (service *Service) MintAccessToken(descriptor any) (string, error) {
	subject, subjectErr := SubjectOf(descriptor)
	if subjectErr != nil {
		return "", subjectErr
	}
	claims := AccessClaims{
		RegisteredClaims: service.registeredClaims(subject, service.accessTTL),
	}
	if identity, ok := identityOf(descriptor); ok {
		claims.Email = identity.Email
		claims.Username = identity.Username
	}
	signed, signErr := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(service.accessSecret)
	if signErr != nil {
		return "", fmt.Errorf("token.mint_access: %w", signErr)
	}
	return signed, nil
}

// MintRefreshToken signs a refresh token carrying only the subject id. Each
// token gets a fresh jti so two mints for the same subject in the same second
// never collide; rotation and the stored per-user sequence both rely on token
// strings being unique.
func (service *Service) MintRefreshToken(descriptor any) (string, error) {
	subject, subjectErr := SubjectOf(descriptor)
	if subjectErr != nil {
		return "", subjectErr
	}
	claims := RefreshClaims{
		RegisteredClaims: service.registeredClaims(subject, service.refreshTTL),
	}
	claims.ID = uuid.NewString()
	signed, signErr := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(service.refreshSecret)
	if signErr != nil {
		return "", fmt.Errorf("token.mint_refresh: %w", signErr)
	}
	return signed, nil
}

// VerifyAccessToken parses and validates an access token.
func (service *Service) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := service.verify(tokenString, claims, service.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefreshToken parses and validates a refresh token.
func (service *Service) VerifyRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := service.verify(tokenString, claims, service.refreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// DecodeSubject extracts the subject id without verifying the signature or
// expiry. Logout uses it so expired tokens can still be revoked.
func (service *Service) DecodeSubject(tokenString string) (string, error) {
	parser := jwt.NewParser()
	claims := &RefreshClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return "", fmt.Errorf("token.decode: %w", ErrTokenInvalid)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token.decode: %w", ErrMissingSubject)
	}
	return claims.Subject, nil
}

func (service *Service) verify(tokenString string, claims jwt.Claims, secret []byte) error {
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, claims, func(parsed *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return service.clock.Now()
	}))
	if parseErr != nil {
		if errors.Is(parseErr, jwt.ErrTokenExpired) {
			return fmt.Errorf("token.verify: %w", ErrTokenExpired)
		}
		return fmt.Errorf("token.verify: %w", ErrTokenInvalid)
	}
	if parsedToken == nil || !parsedToken.Valid {
		return fmt.Errorf("token.verify: %w", ErrTokenInvalid)
	}
	return nil
}

func (service *Service) registeredClaims(subject string, ttl time.Duration) jwt.RegisteredClaims {
	issuedAt := service.clock.Now()
	return jwt.RegisteredClaims{
		Issuer:    service.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	}
}

func identityOf(descriptor any) (Identity, bool) {
	switch value := descriptor.(type) {
	case Identity:
		return value, true
	case *Identity:
		if value == nil {
			return Identity{}, false
		}
		return *value, true
	default:
		return Identity{}, false
	}
}

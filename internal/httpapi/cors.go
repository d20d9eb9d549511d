package httpapi

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errCORSWildcard      = errors.New("cors: wildcard origin not allowed when credentials are enabled")
	errCORSNoOrigins     = errors.New("cors: no explicit origins provided")
	errCORSInvalidOrigin = errors.New("cors: invalid origin format")
)

// ConfigureCORS builds the CORS middleware for browser clients. Because the
// API accepts credentialed requests, every origin must be listed explicitly;
// a wildcard refuses to start.
func ConfigureCORS(logger *zap.Logger, allowedOrigins []string) (gin.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins, err := normalizeOrigins(logger, allowedOrigins)
	if err != nil {
		return nil, err
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}), nil
}

// normalizeOrigins validates, lowercases, and deduplicates the configured
// origins, returning them in sorted order.
func normalizeOrigins(logger *zap.Logger, allowed []string) ([]string, error) {
	if len(allowed) == 0 {
		return nil, errCORSNoOrigins
	}

	seen := make(map[string]struct{}, len(allowed))
	origins := make([]string, 0, len(allowed))
	for _, candidate := range allowed {
		trimmed := strings.TrimSpace(candidate)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			return nil, errCORSWildcard
		}
		origin, originErr := normalizeOrigin(trimmed)
		if originErr != nil {
			return nil, originErr
		}
		if _, duplicate := seen[origin]; duplicate {
			continue
		}
		if strings.HasPrefix(origin, "http://") && !isLoopbackOrigin(origin) {
			logger.Warn("plain-http cors origin configured",
				zap.String("code", "cors.origin.unsafe"),
				zap.String("origin", origin))
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}

	if len(origins) == 0 {
		return nil, errCORSNoOrigins
	}
	sort.Strings(origins)
	return origins, nil
}

// normalizeOrigin reduces one configured value to scheme://host. Origins
// carry no path, query, or fragment; anything beyond the host is a
// configuration mistake, not something to silently strip.
func normalizeOrigin(candidate string) (string, error) {
	parsed, parseErr := url.Parse(candidate)
	if parseErr != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("%w: %s", errCORSInvalidOrigin, candidate)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return "", fmt.Errorf("%w: %s contains path segment", errCORSInvalidOrigin, candidate)
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", fmt.Errorf("%w: %s contains query or fragment", errCORSInvalidOrigin, candidate)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "https" && scheme != "http" {
		return "", fmt.Errorf("%w: %s uses unsupported scheme", errCORSInvalidOrigin, candidate)
	}
	return scheme + "://" + strings.ToLower(parsed.Host), nil
}

func isLoopbackOrigin(origin string) bool {
	parsed, parseErr := url.Parse(origin)
	if parseErr != nil {
		return false
	}
	hostname := parsed.Hostname()
	return hostname == "localhost" || hostname == "127.0.0.1"
}

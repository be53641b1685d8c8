package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/config"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/logger"
	"go.uber.org/zap"
)

// userRefreshInterval throttles how often a signed-in user is written to the directory
const userRefreshInterval = 15 * time.Minute

// UserRecorder keeps the user directory in step with token claims
type UserRecorder interface {
	RecordSignIn(ctx context.Context, user *UserContext) error
}

// Middleware handles authentication for HTTP requests
type Middleware struct {
	jwtValidator     *JWTValidator
	apiKey           string
	actingRoleHeader string
	users            UserRecorder
	logger           *zap.Logger

	seenMu sync.Mutex
	seen   map[uuid.UUID]time.Time
}

// NewMiddleware creates a new authentication middleware. users may be nil.
func NewMiddleware(cfg *config.Config, users UserRecorder, logger *zap.Logger) *Middleware {
	header := cfg.Auth.ActingRoleHeader
	if header == "" {
		header = "X-Acting-Role"
	}
	return &Middleware{
		jwtValidator:     NewJWTValidator(&cfg.Auth, &cfg.AzureAd),
		apiKey:           cfg.ApiKey.Value,
		actingRoleHeader: header,
		users:            users,
		logger:           logger,
		seen:             make(map[uuid.UUID]time.Time),
	}
}

// systemUser is the principal for API key callers
func systemUser() *UserContext {
	return &UserContext{
		UserID:      uuid.Nil,
		DisplayName: "System",
		Email:       "system@straye.io",
		Roles:       []string{string(domain.RoleAdmin)},
		ActingRole:  domain.RoleAdmin,
		AuthType:    AuthTypeAPIKey,
	}
}

// Authenticate is the main authentication middleware
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Try API key first
		if apiKey := r.Header.Get("x-api-key"); apiKey != "" {
			if m.validateAPIKey(apiKey) {
				userCtx := systemUser()
				m.logger.Info("request authenticated",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("auth_type", AuthTypeAPIKey),
					zap.Duration("auth_duration", time.Since(start)),
				)
				next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), userCtx)))
				return
			}
			m.logger.Warn("invalid API key attempt",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		// Try JWT Bearer token
		token, ok := bearerToken(r)
		if !ok {
			http.Error(w, "Unauthorized: missing or invalid authorization header", http.StatusUnauthorized)
			return
		}

		userCtx, err := m.jwtValidator.ValidateToken(token)
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err),
			)
			http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
			return
		}

		role, err := userCtx.ResolveActingRole(r.Header.Get(m.actingRoleHeader))
		if err != nil {
			m.logger.Warn("acting role rejected",
				zap.String("user_id", userCtx.UserID.String()),
				zap.String("requested_role", r.Header.Get(m.actingRoleHeader)),
				zap.Strings("roles", userCtx.Roles),
			)
			http.Error(w, "Forbidden: "+err.Error(), http.StatusForbidden)
			return
		}
		userCtx.ActingRole = role

		m.recordSignIn(r.Context(), userCtx)

		reqLog := logger.WithRequest(m.logger, r.Method, r.URL.Path, r.Header.Get("X-Request-ID"))
		logger.WithActor(reqLog, userCtx.Actor()).Info("request authenticated",
			zap.String("auth_type", AuthTypeJWT),
			zap.Duration("auth_duration", time.Since(start)),
		)

		next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), userCtx)))
	})
}

// OptionalAuthenticate attempts authentication but allows unauthenticated
// requests. Used for the public inbound contact form.
func (m *Middleware) OptionalAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey := r.Header.Get("x-api-key"); apiKey != "" && m.validateAPIKey(apiKey) {
			next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), systemUser())))
			return
		}

		if token, ok := bearerToken(r); ok {
			userCtx, err := m.jwtValidator.ValidateToken(token)
			if err == nil {
				if role, err := userCtx.ResolveActingRole(r.Header.Get(m.actingRoleHeader)); err == nil {
					userCtx.ActingRole = role
					m.recordSignIn(r.Context(), userCtx)
					next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), userCtx)))
					return
				}
			}
			m.logger.Debug("optional auth: token rejected, continuing unauthenticated",
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
		}

		next.ServeHTTP(w, r)
	})
}

// RequireRole middleware ensures the acting role is one of roles
func (m *Middleware) RequireRole(roles ...domain.ActorRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userCtx, ok := FromContext(r.Context())
			if !ok {
				http.Error(w, "Forbidden: no user context", http.StatusForbidden)
				return
			}

			for _, role := range roles {
				if userCtx.ActingRole == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
		})
	}
}

func (m *Middleware) recordSignIn(ctx context.Context, userCtx *UserContext) {
	if m.users == nil {
		return
	}

	m.seenMu.Lock()
	last, ok := m.seen[userCtx.UserID]
	if ok && time.Since(last) < userRefreshInterval {
		m.seenMu.Unlock()
		return
	}
	m.seen[userCtx.UserID] = time.Now()
	m.seenMu.Unlock()

	if err := m.users.RecordSignIn(ctx, userCtx); err != nil {
		m.logger.Warn("failed to record user sign-in",
			zap.String("user_id", userCtx.UserID.String()),
			zap.Error(err),
		)
		m.seenMu.Lock()
		delete(m.seen, userCtx.UserID)
		m.seenMu.Unlock()
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func (m *Middleware) validateAPIKey(key string) bool {
	if m.apiKey == "" {
		return false
	}
	// Constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) == 1
}

package middleware

import (
	"context"
	"crypto/rsa"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/skola-app/unit-enrollment-service/internal/core/domain"
)

// AuthMiddleware verifies RS256 access tokens issued by the identity
// service and places the acting user in the request context. Token
// issuance is not this service's concern; only verification is.
type AuthMiddleware struct {
	publicKey *rsa.PublicKey
	log       *zap.Logger
}

func NewAuthMiddleware(publicKey *rsa.PublicKey, log *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		publicKey: publicKey,
		log:       log,
	}
}

type contextKey string

const userKey contextKey = "actingUser"

// WithUser returns a context carrying the acting user. Exported for tests
// that exercise handlers without the middleware.
func WithUser(ctx context.Context, user domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the acting user the middleware extracted.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userKey).(domain.User)
	return user, ok
}

func (m *AuthMiddleware) RequireRole(roles []string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return m.publicKey, nil
		})
		if err != nil || !token.Valid {
			m.log.Debug("token rejected", zap.Error(err))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			return
		}

		userID, ok := claims["sub"].(string)
		if !ok || userID == "" {
			http.Error(w, "invalid token: missing user ID", http.StatusUnauthorized)
			return
		}

		userRole, ok := claims["role"].(string)
		if !ok || userRole == "" {
			http.Error(w, "invalid token: missing role", http.StatusUnauthorized)
			return
		}

		allowed := false
		for _, role := range roles {
			if userRole == role {
				allowed = true
				break
			}
		}
		if !allowed {
			m.log.Debug("role not allowed",
				zap.String("user_id", userID), zap.String("role", userRole))
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		user := domain.User{
			ID:   userID,
			Role: domain.Role(userRole),
		}
		// Optional claims: students carry an admission number, lecturers a
		// department; both carry an email.
		if v, ok := claims["email"].(string); ok {
			user.Email = v
		}
		if v, ok := claims["admission_number"].(string); ok {
			user.AdmissionNumber = v
		}
		if v, ok := claims["department"].(string); ok {
			user.Department = v
		}

		next(w, r.WithContext(WithUser(r.Context(), user)))
	}
}

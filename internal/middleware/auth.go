package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"keysaccounting-api/internal/model"
	"keysaccounting-api/internal/repository"
	"keysaccounting-api/internal/service"
	"keysaccounting-api/pkg/apierror"
)

// EmployeeIDHeader carries the chat identity of the caller.
const EmployeeIDHeader = "X-Employee-ID"

const (
	// EmployeeIDKey is the context key for the caller's chat identity.
	EmployeeIDKey contextKey = "employee_id"

	// EmployeeKey is the context key for the authorized employee.
	EmployeeKey contextKey = "employee"
)

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	APIKeys []string
}

// publicPaths skip the API key check.
var publicPaths = map[string]bool{
	"/api/status":    true,
	"/api/v1/health": true,
	"/api/v1/ready":  true,
	"/metrics":       true,
}

// NewAuthMiddleware checks the API key and records the caller identity.
// With no keys configured the key check is disabled.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	if len(cfg.APIKeys) == 0 {
		log.Printf("[Auth] No API keys configured, API key check disabled")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if len(cfg.APIKeys) > 0 {
				apiKey := r.Header.Get("X-API-Key")
				if apiKey == "" {
					auth := r.Header.Get("Authorization")
					if strings.HasPrefix(auth, "Bearer ") {
						apiKey = strings.TrimPrefix(auth, "Bearer ")
					}
				}

				if apiKey == "" {
					writeError(w, apierror.Unauthorized("Authentication required. Use X-API-Key header."))
					return
				}
				if !isValidKey(apiKey, cfg.APIKeys) {
					writeError(w, apierror.Unauthorized("Invalid API key"))
					return
				}
			}

			ctx := r.Context()
			if id := strings.TrimSpace(r.Header.Get(EmployeeIDHeader)); id != "" {
				ctx = context.WithValue(ctx, EmployeeIDKey, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PermissionChecker resolves an employee and checks one role.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, telegramID, role string) (*model.Employee, error)
}

// RequireRole admits callers holding any of roles. Admins are always admitted.
func RequireRole(checker PermissionChecker, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := GetEmployeeID(r.Context())
			if id == "" {
				writeError(w, apierror.Unauthorized("X-Employee-ID header is required"))
				return
			}

			var (
				emp *model.Employee
				err error
			)
			for _, role := range roles {
				emp, err = checker.CheckPermission(r.Context(), id, role)
				if err == nil {
					break
				}
				if !errors.Is(err, service.ErrForbidden) {
					break
				}
			}

			switch {
			case err == nil:
			case errors.Is(err, repository.ErrNotFound):
				writeError(w, apierror.Forbidden("Employee is not registered"))
				return
			case errors.Is(err, service.ErrForbidden):
				writeError(w, apierror.Forbidden("Insufficient role"))
				return
			default:
				log.Printf("[Auth] Permission check for %s failed: %v", id, err)
				writeError(w, apierror.ServiceUnavailable(""))
				return
			}

			ctx := context.WithValue(r.Context(), EmployeeKey, emp)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}

// isValidKey checks if the provided key is in the valid keys list.
func isValidKey(key string, validKeys []string) bool {
	for _, valid := range validKeys {
		if key == valid {
			return true
		}
	}
	return false
}

// GetEmployeeID retrieves the caller's chat identity from request context.
func GetEmployeeID(ctx context.Context) string {
	if id, ok := ctx.Value(EmployeeIDKey).(string); ok {
		return id
	}
	return ""
}

// GetEmployee retrieves the authorized employee from request context.
func GetEmployee(ctx context.Context) *model.Employee {
	if emp, ok := ctx.Value(EmployeeKey).(*model.Employee); ok {
		return emp
	}
	return nil
}

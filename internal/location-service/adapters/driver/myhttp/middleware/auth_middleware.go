package middleware

import (
	"net/http"

	"bus-tracker/internal/location-service/adapters/driver/myhttp/handlers"
	"bus-tracker/internal/location-service/core/domain/model"
	"bus-tracker/internal/location-service/core/myerrors"
	"bus-tracker/internal/location-service/core/ports/driver"
)

type AuthMiddleware struct {
	auth driver.IAuthService
}

func NewAuthMiddleware(auth driver.IAuthService) *AuthMiddleware {
	return &AuthMiddleware{
		auth: auth,
	}
}

// SessionHandler resolves the bearer token in the Authorization header
// and stores the identity on the request context.
func (am *AuthMiddleware) SessionHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := am.auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			code := handlers.StatusFor(myerrors.Classify(err))
			handlers.JSONError(w, code, myerrors.Public(err), nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(handlers.WithIdentity(r.Context(), id)))
	})
}

// DriverOnly must run after SessionHandler.
func (am *AuthMiddleware) DriverOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := handlers.IdentityFrom(r.Context())
		if !ok {
			handlers.JSONError(w, http.StatusUnauthorized, myerrors.ErrMissingToken.Error(), nil)
			return
		}
		if id.Role != model.RoleDriver {
			handlers.JSONError(w, http.StatusForbidden, myerrors.ErrDriverOnly.Error(), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

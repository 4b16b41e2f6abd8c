package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/segyhp/peer-lending/internal/domain"
	"github.com/segyhp/peer-lending/internal/service"
	"github.com/segyhp/peer-lending/pkg/response"

	log "github.com/sirupsen/logrus"
)

// Authenticator resolves a bearer token to a caller.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Caller, error)
}

type callerKey struct{}

// WithCaller returns a copy of ctx carrying caller.
func WithCaller(ctx context.Context, caller domain.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller stored by Auth.
func CallerFromContext(ctx context.Context) (domain.Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(domain.Caller)
	return caller, ok
}

// Auth rejects requests without a valid bearer token and stores the
// resolved caller in the request context.
func Auth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				response.BadRequest(w, "No authorization token is provided")
				return
			}

			caller, err := auth.Authenticate(r.Context(), token)
			if errors.Is(err, service.ErrInvalidToken) {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}
			if err != nil {
				log.WithError(err).Error("failed to authenticate request")
				response.InternalServerError(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

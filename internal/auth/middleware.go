package auth

import (
	"context"
	"errors"
	"net/http"

	"ms-club-ticketing/internal/logger"
)

type contextKey string

const operatorKey contextKey = "operator"

// Operator puts the bearer token subject into the request context. Requests
// without a token pass through; a malformed token is logged and ignored.
func Operator(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := ExtractTokenFromRequest(r)
			if err != nil {
				if !errors.Is(err, ErrNoToken) {
					log.LogSecurity("BAD_AUTH_HEADER", err.Error())
				}
				next.ServeHTTP(w, r)
				return
			}
			sub, err := SubjectFromJWT(raw)
			if err != nil {
				log.LogSecurity("BAD_TOKEN", err.Error())
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), sub)))
		})
	}
}

func WithOperator(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operatorKey, id)
}

// OperatorID returns the subject stored by Operator, or "".
func OperatorID(ctx context.Context) string {
	if id, ok := ctx.Value(operatorKey).(string); ok {
		return id
	}
	return ""
}

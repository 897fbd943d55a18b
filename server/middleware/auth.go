package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/indieinfra/plume/server/auth"
	"github.com/indieinfra/plume/server/resp"
	"github.com/indieinfra/plume/server/util"
)

// ValidateTokenMiddleware wraps a downstream handler. At execution time, it
// extracts a Bearer token from the Authorization header and aborts the
// request when there is none. A present token is resolved to its user, who
// is stored in the request context together with a request-scoped logger.
func ValidateTokenMiddleware(resolver auth.UserResolver, log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			resp.WriteUnauthorized(w, "An access token is required")
			return
		}

		user, err := auth.VerifyAccessToken(r.Context(), resolver, token)
		if err != nil {
			util.WithRequest(log, r, "").Error("token verification failed", zap.Error(err))
			resp.WriteInternalServerError(w, "token verification failed")
			return
		}
		if user == nil {
			resp.WriteForbidden(w, "Token validation failed")
			return
		}

		rl := util.WithRequest(log, r, user.Username)
		ctx := util.ContextWithLogger(r.Context(), rl)
		next.ServeHTTP(w, r.WithContext(auth.AddUser(ctx, user)))
	})
}

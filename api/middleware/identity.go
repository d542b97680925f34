package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ticketloom/ticketloom-backend/api/responses"
	pkgerrors "github.com/ticketloom/ticketloom-backend/pkg/errors"
	"github.com/ticketloom/ticketloom-backend/pkg/logger"
)

// UserIDHeader carries the caller identity, set by the gateway in front of
// this service. The service trusts it and does no token verification itself.
const UserIDHeader = "X-User-Id"

// Identity requires a valid user id header and injects it into the request
// context for controllers and the logger.
func Identity(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
				return
			}

			userID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user identity"))
				return
			}

			ctx := WithUserID(r.Context(), userID.String())
			if logg != nil {
				ctx = logg.WithUserID(ctx, userID.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

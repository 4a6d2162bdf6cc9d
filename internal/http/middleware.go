package httpapi

import (
	"context"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"
)

const HeaderCorrelationID = "X-Correlation-Id"

// correlationID adopts the caller's correlation id as the request id and
// echoes it back. Published events carry the same id.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		cid := r.Header.Get(HeaderCorrelationID)
		if cid == "" {
			cid = middleware.GetReqID(ctx)
		} else {
			ctx = context.WithValue(ctx, middleware.RequestIDKey, cid)
		}

		w.Header().Set(HeaderCorrelationID, cid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				hlog.FromRequest(r).Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("panic")
				writeJSON(w, http.StatusInternalServerError, errorResponse{
					Error: "internal server error",
					Kind:  "internal",
					Code:  "internal_error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

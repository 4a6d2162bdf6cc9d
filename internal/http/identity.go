package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/reservation"
)

const (
	HeaderUserID    = "X-User-Id"
	HeaderSessionID = "X-Session-Id"
	HeaderUserRole  = "X-User-Role"
	HeaderIdemKey   = "Idempotency-Key"
)

type ctxKey string

const ctxIdentity ctxKey = "identity"

// Identity is the caller as asserted by the gateway in front of this service.
type Identity struct {
	Holder  reservation.Holder
	IsAdmin bool
}

func (id Identity) Actor() order.Actor {
	return order.Actor{Holder: id.Holder, IsAdmin: id.IsAdmin}
}

func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{
			Holder: reservation.Holder{
				UserID:    strings.TrimSpace(r.Header.Get(HeaderUserID)),
				SessionID: strings.TrimSpace(r.Header.Get(HeaderSessionID)),
			},
			IsAdmin: strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderUserRole)), "admin"),
		}
		ctx := context.WithValue(r.Context(), ctxIdentity, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func IdentityFrom(ctx context.Context) Identity {
	if v, ok := ctx.Value(ctxIdentity).(Identity); ok {
		return v
	}
	return Identity{}
}

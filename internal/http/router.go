package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/tracing"
)

type RouterOptions struct {
	Logger zerolog.Logger
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	// RateLimit wraps the /api routes when set.
	RateLimit func(http.Handler) http.Handler
}

func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(correlationID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(traceRequest)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, took time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", took).
			Msg("request")
	}))
	r.Use(recoverJSON)

	r.Get("/health", h.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		if opts.RateLimit != nil {
			r.Use(opts.RateLimit)
		}
		r.Use(identityMiddleware)

		r.Route("/stock", func(r chi.Router) {
			r.Get("/{variantId}", h.GetStock)
			r.Post("/adjust", h.AdjustStock)
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", h.CreateReservation)
			r.Post("/convert", h.ConvertReservations)
			r.Get("/{id}", h.GetReservation)
			r.Delete("/{id}", h.CancelReservation)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Get("/", h.ListOrders)
			r.Get("/{orderId}", h.GetOrder)
			r.Patch("/{orderId}/status", h.UpdateOrderStatus)
		})
	})

	return r
}

var tracer = otel.Tracer("reservation-service/http")

// traceRequest continues the caller's trace and tags the request logger with
// the request and trace ids.
func traceRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		reqID := middleware.GetReqID(ctx)
		traceID := tracing.TraceID(ctx)
		zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("request_id", reqID).Str("trace_id", traceID)
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

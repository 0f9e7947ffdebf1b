package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"solestore-payments/internal/handler"
)

type Handlers struct {
	Payment   *handler.PaymentHandler
	Callback  *handler.CallbackHandler
	Inventory *handler.InventoryHandler
	OrderFeed *handler.OrderFeed
}

func SetupRoutes(h Handlers, rdb *redis.Client, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/api/v1/payments/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/payments", func(r chi.Router) {
			// Checkout is the one endpoint worth rate limiting: each call
			// pushes a paid prompt to a real phone.
			r.With(RateLimit(rdb, 10, time.Minute, logger)).
				Post("/checkout", h.Payment.Checkout)

			r.Get("/diagnostics", h.Payment.Diagnostics)
			r.Get("/stats", h.Payment.Stats)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{order_number}", h.Payment.OrderStatus)
			r.Get("/{order_number}/feed", h.OrderFeed.Subscribe)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/{variant_id}/availability", h.Inventory.Availability)
			r.Post("/{variant_id}/reserve", h.Inventory.Reserve)
			r.Post("/{variant_id}/release", h.Inventory.Release)
		})

		// Callbacks (receive from payment gateway)
		r.Route("/callbacks", func(r chi.Router) {
			r.Post("/mpesa/stk", h.Callback.HandleSTKCallback)
		})
	})

	return r
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()))
		})
	}
}

// cmd/server/routes.go
package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/unclebandit/venue-broadcast/internal/controller"
	"github.com/unclebandit/venue-broadcast/internal/handler"
)

type routes struct {
	Broadcasts *controller.BroadcastController
	Deliveries *controller.DeliveryController
	Stats      *handler.StatsHandler
	Health     *handler.HealthHandler
	Metrics    prometheus.Gatherer
	// BroadcastLimit throttles POST /broadcast per client IP; nil disables it.
	BroadcastLimit *limiter.Limiter
	Log            *logrus.Entry
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(rt.Log))
	r.Use(middleware.Recoverer)

	broadcast := r.With()
	if rt.BroadcastLimit != nil {
		broadcast = r.With(stdlib.NewMiddleware(rt.BroadcastLimit).Handler)
	}

	// Broadcast routes
	broadcast.Post("/broadcast", rt.Broadcasts.Broadcast)
	r.Get("/broadcast/match-count", rt.Broadcasts.MatchCount)
	r.Get("/broadcast/{id}", rt.Broadcasts.GetBroadcast)
	broadcast.Post("/broadcast/{id}/retry-failed", rt.Broadcasts.RetryFailed)

	// Delivery routes
	r.Post("/delivery-callback", rt.Deliveries.Callback)
	r.Post("/delivery-callback/queue", rt.Deliveries.EnqueueCallback)
	r.Get("/delivery-stats", rt.Stats.GetStatsHandler)

	r.Get("/healthz", rt.Health.HealthHandler)
	if rt.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(rt.Metrics, promhttp.HandlerOpts{}))
	}
	return r
}

func requestLogger(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if log == nil {
				return
			}
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("request handled")
		})
	}
}

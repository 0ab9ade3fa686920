// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/unclebandit/venue-broadcast/internal/config"
	"github.com/unclebandit/venue-broadcast/internal/controller"
	"github.com/unclebandit/venue-broadcast/internal/db"
	"github.com/unclebandit/venue-broadcast/internal/handler"
	"github.com/unclebandit/venue-broadcast/internal/logging"
	"github.com/unclebandit/venue-broadcast/internal/queue"
	"github.com/unclebandit/venue-broadcast/internal/repository"
	"github.com/unclebandit/venue-broadcast/internal/service"
	"github.com/unclebandit/venue-broadcast/internal/transport"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", false).WithError(err).Fatal("invalid configuration")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.JSON)
	log := logging.Component(logger, "server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	conn, err := db.Open(ctx, cfg.Database.DSN(), log)
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	defer conn.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var tr transport.Transport
	if cfg.SMTP.Enabled() {
		tr = transport.NewSMTPTransport(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	} else {
		log.Warn("SMTP_HOST not set, messages are only logged")
		tr = transport.NewLogTransport(logging.Component(logger, "transport"))
	}
	tr = transport.NewInstrumentedTransport(tr, reg)

	venueRepo := &repository.VenueRepository{DB: conn}
	broadcastRepo := &repository.BroadcastRepository{DB: conn}
	deliveryRepo := &repository.DeliveryRepository{DB: conn}
	directory := repository.NewCachedDirectory(venueRepo, cfg.Directory.CacheTTL)

	dispatcher := &service.Dispatcher{
		Ledger:      deliveryRepo,
		Transport:   tr,
		Concurrency: cfg.Dispatch.Concurrency,
		SendTimeout: cfg.Dispatch.SendTimeout,
		Subject:     cfg.Dispatch.Subject,
		Log:         logging.Component(logger, "dispatcher"),
	}
	broadcastService := service.NewBroadcastService(
		broadcastRepo, deliveryRepo, directory, dispatcher,
		cfg.Dispatch.MaxRecipients, logging.Component(logger, "broadcast"),
	)
	ledgerService := service.NewLedgerService(deliveryRepo, logging.Component(logger, "ledger"), reg)
	statsService := &service.StatsService{Ledger: deliveryRepo}

	// Queued callbacks go to RabbitMQ for cmd/worker, or are applied in process.
	var callbacks queue.Queue
	if cfg.AMQP.Enabled {
		q, err := queue.DialAMQP(cfg.AMQP.URL, logging.Component(logger, "queue"))
		if err != nil {
			log.WithError(err).Fatal("failed to connect to RabbitMQ")
		}
		callbacks = q
	} else {
		callbacks = queue.NewInMemoryQueue(logging.Component(logger, "queue"))
		worker := service.NewCallbackWorker(ledgerService, callbacks, cfg.AMQP.CallbackQueue, logging.Component(logger, "worker"))
		if err := worker.Start(ctx); err != nil {
			log.WithError(err).Fatal("failed to start callback worker")
		}
	}
	defer callbacks.Close()

	deliveries := controller.NewDeliveryController(ledgerService)
	deliveries.Queue = callbacks
	deliveries.Topic = cfg.AMQP.CallbackQueue

	rt := routes{
		Broadcasts: &controller.BroadcastController{Service: broadcastService, Log: log},
		Deliveries: deliveries,
		Stats:      &handler.StatsHandler{Service: statsService, Log: log},
		Health:     &handler.HealthHandler{DB: conn},
		Metrics:    reg,
		Log:        logging.Component(logger, "http"),
	}
	if cfg.RateLimit.Enabled {
		rate, err := limiter.NewRateFromFormatted(cfg.RateLimit.Rate)
		if err != nil {
			log.WithError(err).Fatal("invalid rate limit")
		}
		rt.BroadcastLimit = limiter.New(memory.NewStore(), rate)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newRouter(rt),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("🚀 Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

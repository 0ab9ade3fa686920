// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/venue-broadcast/internal/config"
	"github.com/unclebandit/venue-broadcast/internal/db"
	"github.com/unclebandit/venue-broadcast/internal/logging"
	"github.com/unclebandit/venue-broadcast/internal/queue"
	"github.com/unclebandit/venue-broadcast/internal/repository"
	"github.com/unclebandit/venue-broadcast/internal/service"
)

// The worker consumes provider delivery callbacks from RabbitMQ and applies
// them to the delivery ledger.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", false).WithError(err).Fatal("invalid configuration")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.JSON)
	log := logging.Component(logger, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.Database.DSN(), log)
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	defer conn.Close()

	q, err := queue.DialAMQP(cfg.AMQP.URL, logging.Component(logger, "queue"))
	if err != nil {
		log.WithError(err).Fatal("failed to connect to RabbitMQ")
	}
	defer q.Close()

	deliveryRepo := &repository.DeliveryRepository{DB: conn}
	ledger := service.NewLedgerService(deliveryRepo, logging.Component(logger, "ledger"), nil)
	worker := service.NewCallbackWorker(ledger, q, cfg.AMQP.CallbackQueue, log)

	if err := worker.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to register consumer")
	}

	log.WithField("queue", cfg.AMQP.CallbackQueue).Info("worker running, waiting for callbacks")
	<-ctx.Done()
	log.Info("worker stopping")
}

// cmd/migrate/main.go
package main

import (
	"context"
	"os"

	"github.com/unclebandit/venue-broadcast/internal/config"
	"github.com/unclebandit/venue-broadcast/internal/db"
	"github.com/unclebandit/venue-broadcast/internal/logging"
)

// Usage: migrate [up|down|status|version|redo|reset]
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", false).WithError(err).Fatal("invalid configuration")
	}
	log := logging.Component(logging.New(cfg.Log.Level, cfg.Log.JSON), "migrate")

	command := "up"
	var args []string
	if len(os.Args) > 1 {
		command, args = os.Args[1], os.Args[2:]
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.Database.DSN(), log)
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	defer conn.Close()

	if err := db.RunMigrations(ctx, conn, command, args...); err != nil {
		log.WithError(err).Fatal("migration failed")
	}
	log.WithField("command", command).Info("migrations done")
}

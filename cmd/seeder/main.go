// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"time"

	"github.com/unclebandit/venue-broadcast/internal/config"
	"github.com/unclebandit/venue-broadcast/internal/db"
	"github.com/unclebandit/venue-broadcast/internal/logging"
	"github.com/unclebandit/venue-broadcast/internal/seed"
)

func main() {
	fixture := flag.String("file", "seed/venues.yaml", "venue fixture file")
	migrate := flag.Bool("migrate", true, "apply migrations before seeding")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New("info", false).WithError(err).Fatal("invalid configuration")
	}
	log := logging.Component(logging.New(cfg.Log.Level, cfg.Log.JSON), "seeder")

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.Database.DSN(), log)
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	defer conn.Close()

	if *migrate {
		if err := db.Migrate(ctx, conn); err != nil {
			log.WithError(err).Fatal("migration failed")
		}
	}

	venues, err := seed.LoadVenues(*fixture, time.Now().UTC())
	if err != nil {
		log.WithError(err).Fatalf("failed to read %s", *fixture)
	}
	if err := seed.Apply(ctx, conn, venues); err != nil {
		log.WithError(err).Fatal("failed to seed venues")
	}
	log.WithField("venues", len(venues)).Infof("Seeded: %s", *fixture)
}

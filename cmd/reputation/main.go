package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trustgate.io/internal/attestation"
	"trustgate.io/internal/obs"
	"trustgate.io/internal/reputation"
	"trustgate.io/internal/store/pg"
)

func main() {
	obs.Init()
	var (
		dsn      = flag.String("dsn", os.Getenv("TRUSTGATE_PG_DSN"), "PostgreSQL DSN")
		interval = flag.Duration("interval", 0, "Recompute interval; 0 runs once and exits")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or TRUSTGATE_PG_DSN")
	}

	db, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := reputation.NewPGStore(db)
	engine := reputation.NewEngine(store, store, attestation.NewPGStore(db))

	if *interval <= 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		n, err := engine.Run(ctx)
		if err != nil {
			log.Fatalf("reputation run: %v", err)
		}
		log.Printf("scored %d subjects", n)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	log.Printf("reputation engine recomputing every %s", *interval)
	engine.Start(ctx, *interval)
	log.Println("Stopped")
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"trustgate.io/internal/apikey"
	"trustgate.io/internal/attestation"
	"trustgate.io/internal/authn"
	"trustgate.io/internal/events"
	"trustgate.io/internal/httpapi"
	"trustgate.io/internal/oauth"
	"trustgate.io/internal/obs"
	"trustgate.io/internal/ratelimit"
	"trustgate.io/internal/reputation"
	"trustgate.io/internal/risk"
	"trustgate.io/internal/signature"
	"trustgate.io/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("TRUSTGATE_PG_DSN")
	if dsn == "" {
		log.Fatal("TRUSTGATE_PG_DSN is required")
	}
	signingSecret := os.Getenv("TRUSTGATE_TOKEN_SECRET")
	if signingSecret == "" {
		log.Fatal("TRUSTGATE_TOKEN_SECRET is required")
	}
	env := os.Getenv("TRUSTGATE_ENV")
	if env == "" {
		env = "dev"
	}
	addr := os.Getenv("TRUSTGATE_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	db, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if redisAddr := os.Getenv("TRUSTGATE_REDIS_ADDR"); redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisAddr})
		defer redisClient.Close()
	}

	keySvc := apikey.NewService(apikey.NewPGStore(db), apikey.WithEnvironment(env))

	oauthStore := oauth.Store(oauth.NewPGStore(db))
	if redisClient != nil {
		oauthStore = oauth.NewCachedStore(oauthStore, redisClient)
	}
	oauthSvc, err := oauth.NewService(oauthStore, signingSecret)
	if err != nil {
		log.Fatalf("oauth service: %v", err)
	}

	sigVerifier := signature.NewVerifier(signature.NewPGStore(db))
	resolver := authn.NewResolver(keySvc, oauthSvc, sigVerifier)

	attestSvc := attestation.NewService(attestation.NewPGStore(db))
	repuStore := reputation.NewPGStore(db)
	reader := reputation.NewReader(repuStore)

	var anomaly *risk.RedisAnomalyTracker
	if redisClient != nil {
		anomaly = risk.NewRedisAnomalyTracker(redisClient)
	}
	var anomalyScorer risk.AnomalyScorer
	if anomaly != nil {
		anomalyScorer = anomaly
	}
	evaluator := risk.NewEvaluator(reader, risk.NewPGEventStore(db), anomalyScorer)

	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewRedis(redisClient, ratelimit.Window*time.Second)
	} else {
		limiter = ratelimit.NewInMemory(ratelimit.Window * time.Second)
	}
	adaptive := ratelimit.NewAdaptive(limiter)

	stream := events.New()

	cfg := httpapi.Config{
		Version:      version,
		ReadyProbe:   httpapi.ReadyProbe{DB: db, Redis: redisClient},
		Resolver:     resolver,
		Keys:         keySvc,
		OAuth:        oauthSvc,
		Attestations: attestSvc,
		Reputation:   reader,
		Risk:         evaluator,
		Limiter:      adaptive,
		Stream:       stream,
	}
	if anomaly != nil {
		cfg.Anomaly = anomaly
	}
	api := httpapi.New(cfg)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// No WriteTimeout: /v1/events holds its connection open.
		IdleTimeout: 60 * time.Second,
	}

	log.Printf("Starting trustgate-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

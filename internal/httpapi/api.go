package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"trustgate.io/internal/apikey"
	"trustgate.io/internal/attestation"
	"trustgate.io/internal/authn"
	"trustgate.io/internal/events"
	"trustgate.io/internal/oauth"
	"trustgate.io/internal/obs"
	"trustgate.io/internal/ratelimit"
	"trustgate.io/internal/reputation"
	"trustgate.io/internal/risk"
)

// ReadyProbe checks the gateway's infrastructure dependencies.
type ReadyProbe struct {
	DB    *sql.DB
	Redis *redis.Client
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Config carries the services the HTTP layer exposes.
type Config struct {
	Version    string
	ReadyProbe ReadyProbe

	Resolver     *authn.Resolver
	Keys         *apikey.Service
	OAuth        *oauth.Service
	Attestations *attestation.Service
	Reputation   *reputation.Reader
	Risk         *risk.Evaluator
	Limiter      *ratelimit.Adaptive
	Stream       *events.Stream
	Anomaly      AnomalyRecorder
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	version    string
	readyProbe ReadyProbe

	resolver *authn.Resolver
	keys     *apikey.Service
	oauth    *oauth.Service
	attest   *attestation.Service
	repu     *reputation.Reader
	risk     *risk.Evaluator
	limiter  *ratelimit.Adaptive
	stream   *events.Stream
	anomaly  AnomalyRecorder
}

func New(cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		version:    cfg.Version,
		readyProbe: cfg.ReadyProbe,
		resolver:   cfg.Resolver,
		keys:       cfg.Keys,
		oauth:      cfg.OAuth,
		attest:     cfg.Attestations,
		repu:       cfg.Reputation,
		risk:       cfg.Risk,
		limiter:    cfg.Limiter,
		stream:     cfg.Stream,
		anomaly:    cfg.Anomaly,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// credentials
	a.mux.HandleFunc("/v1/orgs/", a.handleOrgResource)
	a.mux.HandleFunc("/v1/keys/", a.handleKeyResource)
	a.mux.HandleFunc("/v1/clients/", a.handleClientResource)

	// tokens
	a.mux.HandleFunc("/v1/oauth/token", a.handleTokenIssue)
	a.mux.HandleFunc("/v1/oauth/tokens/", a.handleTokenResource)

	// trust surface
	a.mux.HandleFunc("/v1/attestations", a.handleAttestationsCollection)
	a.mux.HandleFunc("/v1/attestations/", a.handleAttestationResource)
	a.mux.HandleFunc("/v1/reputation/", a.handleReputation)
	a.mux.HandleFunc("/v1/events", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the router.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withRateLimit(h)
	h = a.withAuth(h)
	h = IPRateLimit(h, 50, 25)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "trustgate-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "trustgate-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	nativecommon "fundchain/native/common"
	"fundchain/observability"
	"fundchain/services/fundd/journal"
	"fundchain/services/fundd/ledger"
	"fundchain/services/fundd/oracle"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	RegistryPath  string
	TLS           TLSConfig
	Auth          AuthConfig
	RateLimit     RateLimit
}

// TLSConfig describes TLS settings. TLS is off unless a certificate is set.
type TLSConfig struct {
	CertFile string
	KeyFile  string
	Config   *tls.Config
}

// Journal is the read side of the event journal plus the idempotency cache.
type Journal interface {
	IdempotencyStore
	Events(ctx context.Context, q journal.Query) ([]journal.EventRecord, error)
	LatestSnapshot(ctx context.Context, pair oracle.Pair) (journal.OracleSnapshot, error)
}

// PriceFeed exposes the oracle's cached medians.
type PriceFeed interface {
	Latest(pair oracle.Pair) (oracle.Snapshot, bool)
}

// Reloader re-reads the fee and role registry.
type Reloader interface {
	Reload(path string) error
}

// Deps are the collaborators the server drives.
type Deps struct {
	Runner   *ledger.Runner
	Journal  Journal
	Oracle   PriceFeed
	Pauses   *nativecommon.PauseSet
	Registry Reloader
	Logger   *slog.Logger
}

// Server exposes the fund engine over HTTP.
type Server struct {
	cfg      Config
	runner   *ledger.Runner
	journal  Journal
	oracle   PriceFeed
	pauses   *nativecommon.PauseSet
	registry Reloader
	auth     *Authenticator
	limiter  *RateLimiter
	logger   *slog.Logger
	router   http.Handler
}

// New constructs the HTTP server.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Runner == nil {
		return nil, fmt.Errorf("runner required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth, err := NewAuthenticator(cfg.Auth, logger)
	if err != nil {
		return nil, fmt.Errorf("configure auth: %w", err)
	}
	if deps.Pauses == nil {
		deps.Pauses = nativecommon.NewPauseSet()
	}
	srv := &Server{
		cfg:      cfg,
		runner:   deps.Runner,
		journal:  deps.Journal,
		oracle:   deps.Oracle,
		pauses:   deps.Pauses,
		registry: deps.Registry,
		auth:     auth,
		limiter:  NewRateLimiter(cfg.RateLimit),
		logger:   logger,
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Group(func(user chi.Router) {
			user.Use(s.auth.Middleware(), s.limiter.Middleware, s.idempotent)

			user.Get("/funds", s.ListFunds)
			user.Post("/funds", s.InitFund)
			user.Route("/funds/{fund}", func(f chi.Router) {
				f.Get("/", s.GetFund)
				f.Patch("/", s.UpdateFund)
				f.Post("/kill", s.KillFund)
				f.Post("/migrate", s.StartMigration)
				f.Post("/migrate/successor", s.InitSuccessor)
				f.Post("/migrate/tokens", s.MigrateTokens)
				f.Post("/poke", s.Poke)

				f.Get("/basket", s.GetBasket)
				f.Post("/basket", s.AddToBasket)
				f.Delete("/basket/{token}", s.RemoveFromBasket)

				f.Get("/actors/{identity}", s.GetActor)
				f.Put("/actors/{identity}", s.PutActor)
				f.Delete("/actors/{identity}", s.DeleteActor)

				f.Get("/pending/{owner}", s.GetPending)
				f.Post("/pending", s.AddToPending)
				f.Post("/pending/remove", s.RemoveFromPending)
				f.Post("/mint", s.MintShares)
				f.Post("/redeem", s.BurnShares)

				f.Get("/rebalance", s.GetRebalance)
				f.Post("/rebalance", s.StartRebalance)
				f.Post("/rebalance/details", s.AddRebalanceDetails)

				f.Post("/auctions", s.OpenAuction)
				f.Get("/auctions/{id}", s.GetAuction)
				f.Post("/auctions/{id}/bid", s.Bid)
				f.Post("/auctions/{id}/close", s.CloseAuction)

				f.Get("/fees/recipients", s.GetFeeRecipients)
				f.Post("/fees/distribute", s.DistributeFees)
				f.Get("/fees/distributions/{index}", s.GetFeeDistribution)
				f.Post("/fees/distributions/{index}/crank", s.CrankFeeDistribution)

				f.Get("/events", s.GetEvents)
			})
			user.Get("/balances/{account}/{token}", s.GetBalance)
			user.Get("/oracle/{sell}/{buy}", s.GetOraclePrice)
		})

		api.Group(func(op chi.Router) {
			op.Use(s.auth.Middleware(ScopeOperator), s.limiter.Middleware, s.idempotent)
			op.Post("/admin/credit", s.Credit)
			op.Get("/admin/pauses", s.GetPauses)
			op.Put("/admin/pauses/{module}", s.SetPause)
			op.Post("/admin/registry/reload", s.ReloadRegistry)
		})
	})

	return otelhttp.NewHandler(r, "fundd")
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.router,
		TLSConfig:         s.cfg.TLS.Config,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("fundd http server listening", "addr", s.cfg.ListenAddress)
	var err error
	if strings.TrimSpace(s.cfg.TLS.CertFile) == "" {
		err = srv.ListenAndServe()
	} else {
		err = srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) idempotent(next http.Handler) http.Handler {
	if s.journal == nil {
		return next
	}
	return WithIdempotency(s.journal, next)
}

// requestID propagates or assigns X-Request-ID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), chimw.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.ModuleMetrics().Observe("fund", route, status, time.Since(started))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// caller returns the authenticated principal's address.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing identity")
		return common.Address{}, false
	}
	return principal.Caller, true
}

func (s *Server) fundParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	return s.addressParam(w, r, "fund")
}

func (s *Server) addressParam(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	addr, err := parseAccount(chi.URLParam(r, name), name)
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return common.Address{}, false
	}
	return addr, true
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"fundchain/core/events"
	"fundchain/core/state"
	"fundchain/crypto"
	nativecommon "fundchain/native/common"
	"fundchain/native/fund"
	"fundchain/observability"
	"fundchain/observability/logging"
	telemetry "fundchain/observability/otel"
	"fundchain/services/fundd/config"
	"fundchain/services/fundd/crank"
	"fundchain/services/fundd/journal"
	"fundchain/services/fundd/ledger"
	"fundchain/services/fundd/oracle"
	"fundchain/services/fundd/registry"
	"fundchain/services/fundd/server"
	"fundchain/storage"
)

var version = "dev"

func main() {
	var (
		cfgPath string
		listen  string
	)
	flag.StringVar(&cfgPath, "config", "services/fundd/config.yaml", "path to fundd configuration file")
	flag.StringVar(&listen, "listen", "", "override the configured listen address")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("FUND_ENV"))
	cfg, err := config.Load(cfgPath, config.WithListenAddress(listen), config.WithEnvironment(env))
	if err != nil {
		log.Fatalf("fundd: load config: %v", err)
	}

	logOpts := logging.Options{Level: logging.ParseLevel(cfg.Logging.Level)}
	if cfg.Logging.File != "" {
		logOpts.File = &logging.FileConfig{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   true,
		}
	}
	logger, logCloser := logging.SetupWithOptions("fundd", cfg.Environment, logOpts)
	defer logCloser.Close()

	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:    "fundd",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Endpoint:       strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		Insecure:       insecure,
		Headers:        telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:        cfg.Telemetry.Metrics,
		Traces:         cfg.Telemetry.Traces,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatalf("fundd: init telemetry: %v", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	if err := run(cfg, logger); err != nil {
		logger.Error("fundd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg.Storage)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := state.EnsureStateVersion(db, cfg.Storage.AllowMigrate); err != nil {
		return err
	}

	j, err := journal.Open(cfg.Journal.DSN, logger)
	if err != nil {
		return err
	}
	defer j.Close()

	var reg *registry.Registry
	if cfg.RegistryPath != "" {
		if reg, err = registry.Load(cfg.RegistryPath); err != nil {
			return err
		}
	} else if reg, err = registry.New(registry.File{}); err != nil {
		return err
	}

	prices, err := buildOracle(cfg.Oracle, j, logger)
	if err != nil {
		return err
	}

	band, err := fund.ParseD18(cfg.Oracle.Band)
	if err != nil {
		return err
	}
	pauses := nativecommon.NewPauseSet(cfg.PausedModules...)
	collab := ledger.Collaborators{Fees: reg, Roles: reg, Tokens: reg, Pauses: pauses}
	deps := server.Deps{Journal: j, Pauses: pauses, Registry: reg, Logger: logger}
	if prices != nil {
		collab.Oracle = prices
		deps.Oracle = prices
	}
	runner, err := ledger.New(state.NewManager(db), collab, ledger.Policy{
		MaxPriceAge: cfg.Oracle.MaxAge.Duration,
		PriceBand:   band,
		Quota: nativecommon.Quota{
			MaxRequestsPerEpoch: cfg.Quota.MaxRequests,
			MaxVolumePerEpoch:   cfg.Quota.MaxVolume,
			EpochSeconds:        uint32(cfg.Quota.Epoch.Duration / time.Second),
		},
	},
		ledger.WithLogger(logger),
		ledger.WithSink(events.Fanout{j, observability.Events()}),
	)
	if err != nil {
		return err
	}
	deps.Runner = runner

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		RegistryPath:  cfg.RegistryPath,
		TLS: server.TLSConfig{
			CertFile: os.Getenv("FUNDD_TLS_CERT"),
			KeyFile:  os.Getenv("FUNDD_TLS_KEY"),
		},
		Auth: server.AuthConfig{
			HMACSecret:    cfg.Auth.HMACSecret,
			Issuer:        cfg.Auth.Issuer,
			Audience:      cfg.Auth.Audience,
			ClockSkew:     cfg.Auth.ClockSkew.Duration,
			AnonymousRead: cfg.Auth.AnonymousRead,
		},
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	}, deps)
	if err != nil {
		return err
	}

	if prices != nil {
		go func() {
			if err := prices.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("oracle stopped", "error", err)
			}
		}()
	}

	if cfg.Crank.Identity != "" {
		keeper, err := buildCrank(ctx, cfg.Crank, runner, logger)
		if err != nil {
			return err
		}
		keeper.Start()
		defer keeper.Stop()
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openDatabase(cfg config.StorageConfig) (storage.Database, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemDB(), nil
	case "bolt":
		db, err := storage.NewBoltDB(cfg.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		db, err := storage.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}

func buildOracle(cfg config.OracleConfig, recorder oracle.Recorder, logger *slog.Logger) (*oracle.Manager, error) {
	if len(cfg.Pairs) == 0 {
		return nil, nil
	}
	client := &http.Client{Timeout: 10 * time.Second}
	sources := make([]oracle.Source, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		built, err := oracle.BuildSource(oracle.SourceConfig{
			Name:     src.Name,
			Type:     src.Type,
			Endpoint: src.Endpoint,
			APIKey:   src.APIKey,
			Prices:   src.Prices,
		}, client)
		if err != nil {
			return nil, err
		}
		sources = append(sources, built)
	}
	pairs := make([]oracle.Pair, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		sell, err := crypto.ParseAddress(p.Sell)
		if err != nil {
			return nil, err
		}
		buy, err := crypto.ParseAddress(p.Buy)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, oracle.Pair{Sell: sell, Buy: buy})
	}
	return oracle.New(sources, pairs, cfg.Interval.Duration, cfg.MaxAge.Duration, cfg.MinFeeds,
		oracle.WithLogger(logger),
		oracle.WithRecorder(recorder),
		oracle.WithCacheSize(cfg.CacheSize),
	)
}

func buildCrank(ctx context.Context, cfg config.CrankConfig, runner *ledger.Runner, logger *slog.Logger) (*crank.Scheduler, error) {
	identity, err := crypto.ParseAddress(cfg.Identity)
	if err != nil {
		return nil, err
	}
	funds := make([]common.Address, 0, len(cfg.Funds))
	for _, raw := range cfg.Funds {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return nil, err
		}
		funds = append(funds, addr)
	}
	return crank.New(ctx, crank.Config{
		Identity:           identity,
		PokeSchedule:       cfg.PokeSchedule,
		DistributeSchedule: cfg.DistributeSchedule,
		Funds:              funds,
	}, runner, logger)
}

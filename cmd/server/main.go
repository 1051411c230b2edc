package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"permit/internal/audit"
	"permit/internal/catalog"
	"permit/internal/permission/handler"
	"permit/internal/permission/service"
	groupstore "permit/internal/permission/store/group"
	overridestore "permit/internal/permission/store/override"
	templatestore "permit/internal/permission/store/template"
	"permit/internal/platform/config"
	"permit/internal/platform/httpserver"
	"permit/internal/platform/logger"
	"permit/internal/platform/metrics"
	redisplatform "permit/internal/platform/redis"
	"permit/internal/resolution"
	"permit/pkg/domain"
	"permit/pkg/requestcontext"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: PostgreSQL when configured, in-memory otherwise. The memory
	// mode exists for local development and seeds the hospitality catalog;
	// in postgres mode the catalog comes from migrations.
	var (
		catalogStore   catalog.Store
		groups         service.GroupStore
		overrides      service.OverrideStore
		templates      service.TemplateStore
		auditStore     audit.Store
		txOpt          service.Option
		resolverGroups resolution.GroupReader
		resolverOvr    resolution.OverrideReader
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("database open failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			log.Error("database unreachable", "error", err)
			os.Exit(1)
		}

		catalogStore = catalog.NewPostgres(db)
		pgGroups := groupstore.NewPostgres(db)
		pgOverrides := overridestore.NewPostgres(db)
		groups, resolverGroups = pgGroups, pgGroups
		overrides, resolverOvr = pgOverrides, pgOverrides
		templates = templatestore.NewPostgres(db)
		auditStore = audit.NewPostgres(db)
		txOpt = service.WithTx(newPermissionPostgresTx(db))
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		memCatalog := catalog.NewInMemoryStore()
		catalog.SeedHospitalityCatalog(memCatalog)
		catalogStore = memCatalog
		memGroups := groupstore.NewInMemoryStore()
		memOverrides := overridestore.NewInMemoryStore()
		groups, resolverGroups = memGroups, memGroups
		overrides, resolverOvr = memOverrides, memOverrides
		templates = templatestore.NewInMemory()
		auditStore = audit.NewInMemoryStore()
		txOpt = func(*service.Service) {}
	}

	registry := catalog.NewRegistry(catalogStore)

	// Optional redis snapshot cache. Absence just means every check reads
	// the stores directly.
	var cache *resolution.SnapshotCache
	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		cache = resolution.NewSnapshotCache(redisClient, cfg.Redis.SnapshotTTL, log, m)
	}

	group, runCtx := errgroup.WithContext(ctx)

	// Optional kafka fan-out for committed audit entries.
	ledgerOpts := []audit.Option{}
	publisher, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
	if err != nil {
		log.Error("kafka connection failed", "error", err)
		os.Exit(1)
	}
	if publisher != nil {
		defer publisher.Close()
		fanout := make(chan audit.Entry, 256)
		ledgerOpts = append(ledgerOpts, audit.WithFanout(fanout))
		worker := audit.NewWorker(publisher, fanout, log)
		group.Go(func() error {
			if err := worker.Run(runCtx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	ledger := audit.NewLedger(auditStore, ledgerOpts...)

	mutationOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithHighValueThreshold(cfg.HighValueThreshold),
		txOpt,
	}
	if cache != nil {
		mutationOpts = append(mutationOpts, service.WithCacheInvalidator(cache))
	}
	mutations := service.New(registry, groups, overrides, templates, ledger, mutationOpts...)

	resolverOpts := []resolution.Option{
		resolution.WithLogger(log),
		resolution.WithMetrics(m),
	}
	if cache != nil {
		resolverOpts = append(resolverOpts, resolution.WithCache(cache))
	}
	resolver := resolution.New(registry, resolverOvr, resolverGroups, ledger, resolverOpts...)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestContextMiddleware)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	handler.New(mutations, resolver, ledger, log).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	group.Go(func() error {
		log.Info("starting permit server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// requestContextMiddleware copies the chi request id into the request context
// helpers the services log with, and picks up the actor the upstream gateway
// authenticated. Requests without a valid actor header stay anonymous; the
// handlers reject mutations from them.
func requestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if requestID := chimiddleware.GetReqID(ctx); requestID != "" {
			ctx = requestcontext.WithRequestID(ctx, requestID)
		}
		if actorID, err := domain.ParseUserID(r.Header.Get("X-Actor-ID")); err == nil {
			ctx = requestcontext.WithActorID(ctx, actorID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

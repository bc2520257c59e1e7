package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/auth"
	"github.com/ariefcatur/go-pos-ledger/internal/config"
	"github.com/ariefcatur/go-pos-ledger/internal/httpx"
	"github.com/ariefcatur/go-pos-ledger/internal/inventory"
	kafkax "github.com/ariefcatur/go-pos-ledger/internal/kafka"
	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/logging"
	"github.com/ariefcatur/go-pos-ledger/internal/memstore"
	"github.com/ariefcatur/go-pos-ledger/internal/orders"
	"github.com/ariefcatur/go-pos-ledger/internal/postgres"
	"github.com/ariefcatur/go-pos-ledger/internal/redisx"
	"github.com/ariefcatur/go-pos-ledger/internal/reports"
	"github.com/ariefcatur/go-pos-ledger/internal/seed"
	"github.com/ariefcatur/go-pos-ledger/internal/tracing"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// backend is what the API needs from a ledger store.
type backend interface {
	ledger.Store
	auth.Credentials
	reports.Source
	seed.Catalog
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)
	tracing.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store    backend
		sessions auth.SessionStore
		pub      orders.Publisher
	)
	switch cfg.Store {
	case "memory":
		log.Warn("memory store: single process only, data is lost on exit")
		store = memstore.New()
		sessions = auth.NewMemorySessions()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.WithError(err).Fatal("db connect")
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("db migrate")
		}
		store = postgres.NewStore(db, cfg.LockTimeout)

		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		sessions = &auth.RedisSessions{RDB: rdb}

		prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCommitted, 1024, log)
		prod.Start()
		defer prod.WaitClosed()
		defer prod.Close()
		pub = prod
	}

	authority := auth.NewAuthority(store, sessions, cfg.SessionTTL, log)
	if cfg.SeedFile != "" {
		sd, err := seed.ReadFile(cfg.SeedFile)
		if err != nil {
			log.WithError(err).Fatal("seed read")
		}
		res, err := seed.Apply(ctx, store, authority.Register, sd, log)
		if err != nil {
			log.WithError(err).Fatal("seed apply")
		}
		log.WithFields(logrus.Fields{"items": res.Items, "employees": res.Employees}).Info("seed applied")
	} else if cfg.Store == "memory" {
		log.Warn("memory store without SEED_FILE starts with an empty catalog")
	}
	inv := &inventory.Ledger{Store: store, Auth: authority, Log: log}
	router := httpx.NewServer(httpx.Deps{
		Auth:      authority,
		Inventory: inv,
		Orders:    orders.NewEngine(store, inv, authority, pub, cfg.ServiceName, log),
		Reports:   reports.NewAggregator(store, cfg.Location()),
		Log:       log,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("api exited")
	}
}

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-pos-ledger/internal/audit"
	"github.com/ariefcatur/go-pos-ledger/internal/config"
	kafkax "github.com/ariefcatur/go-pos-ledger/internal/kafka"
	"github.com/ariefcatur/go-pos-ledger/internal/logging"
	"github.com/ariefcatur/go-pos-ledger/internal/orders"
	"github.com/ariefcatur/go-pos-ledger/internal/postgres"
	"github.com/ariefcatur/go-pos-ledger/internal/redisx"
	"github.com/ariefcatur/go-pos-ledger/internal/tracing"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel).WithField("service", cfg.ServiceName+"-auditor")
	tracing.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicAuditMismatch, 256, log)
	prod.Start()
	defer prod.WaitClosed()
	defer prod.Close()

	a := &audit.Auditor{
		Ledger:    postgres.NewStore(db, cfg.LockTimeout),
		Dedup:     &audit.RedisDeduper{RDB: rdb, Service: "auditor"},
		Locker:    audit.NewRedisLocker(rdb),
		Publisher: prod,
		Service:   cfg.ServiceName + "-auditor",
		Loc:       cfg.Location(),
		Log:       log,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.AuditGroup, orders.TopicOrderCommitted, cfg.AuditWorkers, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("workers", cfg.AuditWorkers).Info("auditor consumer started")
		return cons.Start(gctx, a.HandleOrderCommitted)
	})
	g.Go(func() error {
		a.RunSweeps(gctx, cfg.AuditSweepInterval)
		return nil
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("auditor exited")
	}
}

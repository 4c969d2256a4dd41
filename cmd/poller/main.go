package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/richardliu001/address-ledger/internal/config"
	"github.com/richardliu001/address-ledger/internal/logger"
	"github.com/richardliu001/address-ledger/internal/metrics"
	"github.com/richardliu001/address-ledger/internal/repo"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func main() {
	path := "internal/config/config.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.Hash{},
	}
	defer kw.Close()

	repository := repo.NewRepository(gdb, nil, kw, cfg.Cache.BalanceTTL, log)
	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Outbox.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.Outbox.MetricsAddr, mux); err != nil {
				log.Errorf("metrics listener: %v", err)
			}
		}()
	}

	ticker := time.NewTicker(cfg.Outbox.Interval)
	defer ticker.Stop()

	log.Infow("ledger-poller started", "topic", cfg.Kafka.Topic, "batch", cfg.Outbox.BatchSize)
	for {
		select {
		case <-ctx.Done():
			log.Info("ledger-poller stopped")
			return
		case <-ticker.C:
			relay(ctx, repository, m, cfg.Outbox.BatchSize, log)
		}
	}
}

// relay publishes one batch of pending events. Events that fail to publish
// stay unprocessed and are retried on the next tick.
func relay(ctx context.Context, r repo.RepositoryInterface, m *metrics.Metrics, batch int, log *zap.SugaredLogger) {
	events, err := r.PollOutbox(ctx, batch)
	if err != nil {
		log.Errorf("poll outbox: %v", err)
		return
	}
	for _, evt := range events {
		err := r.PublishEvent(ctx, evt)
		m.RecordOutboxPublish(err)
		if err != nil {
			log.Errorf("publish id=%d: %v", evt.ID, err)
			continue
		}
		if err := r.MarkOutboxProcessed(ctx, evt.ID); err != nil {
			log.Errorf("mark processed id=%d: %v", evt.ID, err)
		} else {
			log.Infof("event %d sent", evt.ID)
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/richardliu001/address-ledger/internal/config"
	"github.com/richardliu001/address-ledger/internal/logger"
	"github.com/richardliu001/address-ledger/internal/metrics"
	"github.com/richardliu001/address-ledger/internal/repo"
	"github.com/richardliu001/address-ledger/internal/service"
	httptransport "github.com/richardliu001/address-ledger/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	path := "internal/config/config.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. repo & service; the server only writes the outbox, cmd/poller relays it
	repository := repo.NewRepository(gdb, rdb, nil, cfg.Cache.BalanceTTL, log)
	if err := repository.Migrate(ctx); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}
	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	lock := repo.NewAddressLock(rdb, cfg.Lock.TTL, cfg.Lock.Timeout)
	svc := service.NewLedgerService(repository, lock, m, log)

	// 6. gin router
	info := httptransport.BuildInfo{Name: cfg.Server.Name, Version: cfg.Server.Version, StartedAt: time.Now()}
	router := httptransport.NewRouter(svc, cfg.RateLimit, m, prometheus.DefaultGatherer, info, log)

	// 7. serve
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Infof("ledger-server listening on %s", srv.Addr)
	if err := serve(ctx, srv, ln, 10*time.Second, log); err != nil {
		log.Fatalf("serve: %v", err)
	}
	log.Info("ledger-server stopped")
}

// serve runs srv on ln until ctx is done, then drains in-flight requests for
// up to grace. Serve returns as soon as Shutdown starts, so serve waits for
// Shutdown itself before returning.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration, log *zap.SugaredLogger) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/modashop/gateway"
	"github.com/example/modashop/pkg/bot"
	"github.com/example/modashop/pkg/config"
	"github.com/example/modashop/pkg/discovery"
	"github.com/example/modashop/pkg/dispatch"
	"github.com/example/modashop/pkg/messenger"
	"github.com/example/modashop/pkg/profile"
	"github.com/example/modashop/pkg/report"
	"github.com/example/modashop/pkg/repository"
	"github.com/example/modashop/pkg/workflow"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 15 * time.Second
	pollerElection  = "telegram-poller"
)

type store interface {
	repository.DocumentStore
	gateway.Pinger
}

func main() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "config/config.yaml"
	}
	configPath := flag.String("config", defaultPath, "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting shop bot",
		zap.String("name", cfg.Server.Name),
		zap.String("mode", cfg.Telegram.Mode),
		zap.String("store", cfg.Store.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Shop bot failed", zap.Error(err))
	}
	logger.Info("Shop bot stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	gw := gateway.NewGateway(&cfg.Server, logger.Named("gateway"))

	docs, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	gw.AddReadinessCheck("store", docs)

	var cache profile.UserCache
	if cfg.Redis.Addr != "" {
		redisRepo := repository.NewRedisRepository(&cfg.Redis)
		defer redisRepo.Close()
		if err := redisRepo.Ping(ctx); err != nil {
			logger.Warn("Redis connection failed, user lookups will miss the cache", zap.Error(err))
		} else {
			logger.Info("Redis connected successfully")
		}
		cache = redisRepo
		gw.AddReadinessCheck("redis", redisRepo)
	}

	tg, err := messenger.NewTelegram(&cfg.Telegram, logger.Named("telegram"))
	if err != nil {
		return err
	}

	engine := workflow.NewEngine(docs, tg, workflow.Options{
		AdminChatID:     cfg.Telegram.AdminChatID,
		SupportUsername: cfg.Shop.SupportUsername,
	}, logger.Named("workflow"))
	tracker := profile.NewTracker(docs, cache, tg, cfg.Telegram.WebAppURL, logger.Named("profile"))
	reporter := report.NewReporter(docs, tracker, cfg.Shop.Location(), cfg.Shop.SupportUsername)
	handler := bot.NewHandler(engine, tracker, reporter, tg, logger.Named("bot"))

	dispatcher, err := dispatch.NewDispatcher(handler, logger.Named("dispatch"))
	if err != nil {
		return err
	}
	defer dispatcher.Stop(shutdownTimeout)

	var webhook http.Handler
	if cfg.Telegram.Mode == config.ModeWebhook {
		webhook = tg.WebhookHandler()
	}
	gw.SetupRoutes(cfg.Telegram.WebhookPath, webhook)

	var sd *discovery.ServiceDiscovery
	instance := &discovery.ServiceInstance{Name: cfg.Server.Name, Host: cfg.Server.Host, Port: cfg.Server.Port}
	if len(cfg.Etcd.Endpoints) > 0 {
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd, logger.Named("discovery"))
		if err != nil {
			return err
		}
		defer sd.Close()

		if err := sd.Register(ctx, instance); err != nil {
			logger.Warn("Failed to register service, continuing without registration", zap.Error(err))
		} else {
			defer func() {
				deregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := sd.Deregister(deregCtx, instance); err != nil {
					logger.Warn("Failed to deregister service", zap.Error(err))
				}
			}()
			if peers, err := sd.Discover(ctx, cfg.Server.Name); err == nil {
				logger.Info("Service instances registered", zap.Int("count", len(peers)))
			}
		}
	}

	errCh := make(chan error, 2)
	go func() {
		if err := gw.Start(); err != nil {
			errCh <- fmt.Errorf("gateway: %w", err)
		}
	}()
	go func() {
		if err := receive(ctx, cfg, tg, dispatcher, sd, instance, logger); err != nil {
			errCh <- fmt.Errorf("telegram: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Gateway shutdown failed", zap.Error(err))
	}
	return runErr
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store, func(), error) {
	if cfg.Store.Driver == config.DriverMemory {
		logger.Warn("Using in-memory document store, data is lost on restart")
		return repository.NewMemoryRepository(), func() {}, nil
	}

	mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoRepo.Close(closeCtx); err != nil {
			logger.Warn("Failed to close MongoDB client", zap.Error(err))
		}
	}

	if err := mongoRepo.Ping(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("failed to reach MongoDB: %w", err)
	}
	if err := mongoRepo.EnsureIndexes(ctx); err != nil {
		logger.Warn("Failed to create indexes", zap.Error(err))
	}
	logger.Info("MongoDB connected successfully", zap.String("database", cfg.MongoDB.Database))
	return mongoRepo, closeFn, nil
}

// receive feeds chat updates to the dispatcher until ctx is done. With etcd
// configured, only the elected instance long-polls.
func receive(ctx context.Context, cfg *config.Config, tg *messenger.Telegram, d *dispatch.Dispatcher, sd *discovery.ServiceDiscovery, instance *discovery.ServiceInstance, logger *zap.Logger) error {
	if cfg.Telegram.Mode == config.ModeWebhook {
		return tg.StartWebhook(ctx, d.Dispatch)
	}
	if sd == nil {
		return tg.StartPolling(ctx, d.Dispatch)
	}

	for {
		leadership, err := sd.Campaign(ctx, pollerElection, instance.Addr())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		pollCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-leadership.Done():
				cancel()
			case <-pollCtx.Done():
			}
		}()
		err = tg.StartPolling(pollCtx, d.Dispatch)
		cancel()

		resignCtx, cancelResign := context.WithTimeout(context.Background(), 5*time.Second)
		if rerr := leadership.Resign(resignCtx); rerr != nil {
			logger.Warn("Failed to resign leadership", zap.Error(rerr))
		}
		cancelResign()

		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("Leadership lost, campaigning again")
	}
}

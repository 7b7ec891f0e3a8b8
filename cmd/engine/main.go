// The engine bridges a practice management system to the Antech V6 Lab API:
// it routes inbound commands from the message bus to provider operations and
// polls the Lab for new orders and results on a schedule.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/antech-v6-engine/internal/antech"
	"github.com/antech-v6-engine/internal/bus"
	"github.com/antech-v6-engine/internal/cache"
	"github.com/antech-v6-engine/internal/config"
	"github.com/antech-v6-engine/internal/domain"
	"github.com/antech-v6-engine/internal/flags"
	"github.com/antech-v6-engine/internal/mapper"
	"github.com/antech-v6-engine/internal/ops"
	"github.com/antech-v6-engine/internal/processor"
	"github.com/antech-v6-engine/internal/queue"
	"github.com/antech-v6-engine/internal/service"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"provider":    service.ProviderName,
		"environment": cfg.Environment,
	}).Info("Starting engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	tokens, err := cache.NewRedisStore(cache.RedisConfig{
		URL:        cfg.Cache.RedisURL,
		DefaultTTL: cfg.Cache.DefaultTTL,
		PoolSize:   cfg.Cache.PoolSize,
		MaxRetries: cfg.Cache.MaxRetries,
	}, logger.WithField("component", "cache"))
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect token cache")
	}
	defer tokens.Close()

	messageBus, err := bus.NewRedisBus(cfg.Bus.RedisURL, logger.WithField("component", "bus"))
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect message bus")
	}
	defer messageBus.Close()

	jobStore, err := newJobStore(cfg.Bus.RedisURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect job store")
	}

	httpClient := antech.NewHTTPClient(antech.HTTPConfig{
		Timeout:        cfg.Lab.Timeout,
		RequestsPerSec: cfg.Lab.RequestsPerSec,
		Burst:          cfg.Lab.Burst,
	}, logger.WithField("component", "http"),
		antech.NewActivityObserver(logger.WithField("component", "activity"), nil))

	labClient := antech.NewClient(httpClient, tokens, antech.ClientConfig{
		TokenTTL: cfg.Lab.TokenTTL,
	}, logger.WithField("component", "lab"))

	flagProvider, statsigShutdown := newFlagProvider(cfg.Statsig, logger.WithField("component", "flags"))
	defer statsigShutdown()

	var mapperOpts []mapper.Option
	if cfg.Mapper.PetAgeUnits != "" {
		mapperOpts = append(mapperOpts, mapper.WithPetAgeUnits(antech.PetAgeUnits(cfg.Mapper.PetAgeUnits)))
	}
	m := mapper.New(flagProvider, logger.WithField("component", "mapper"), mapperOpts...)

	provider := service.New(labClient, m, nil, logger.WithField("component", "service"))
	proc := processor.New(provider, messageBus, logger.WithField("component", "processor"))

	scheduler := queue.NewScheduler(jobStore, cfg.Jobs.Concurrency, logger.WithField("component", "queue"))
	scheduler.AddQueue(service.ProviderName+".orders", cfg.Jobs.Orders.Every, proc.ProcessOrders)
	scheduler.AddQueue(service.ProviderName+".results", cfg.Jobs.Results.Every, proc.ProcessResults)

	router := bus.NewRouter(messageBus, service.ProviderName, logger.WithField("component", "router"))
	registerHandlers(router, provider, scheduler)

	opsServer := ops.NewServer(configManager, tokens, messageBus, labClient, scheduler)

	done := make(chan struct{}, 3)
	go func() {
		scheduler.Run(ctx)
		done <- struct{}{}
	}()
	go func() {
		if err := router.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Router stopped")
			cancel()
		}
		done <- struct{}{}
	}()
	go func() {
		if err := opsServer.Start(ctx); err != nil {
			logger.WithError(err).Error("Operational server stopped")
			cancel()
		}
		done <- struct{}{}
	}()

	<-ctx.Done()
	for i := 0; i < 3; i++ {
		<-done
	}
	logger.Info("Engine stopped")
}

// registerHandlers binds the provider operations to their bus commands.
func registerHandlers(router *bus.Router, provider *service.Provider, scheduler *queue.Scheduler) {
	router.Handle("integration", "create", func(ctx context.Context, req *bus.Request) (interface{}, error) {
		if err := scheduler.Schedule(ctx, req.Data.IntegrationID, &req.Data); err != nil {
			return nil, err
		}
		return nil, nil
	})
	// Integration options travel with every command, so an update needs no
	// local state change.
	router.Handle("integration", "update", func(context.Context, *bus.Request) (interface{}, error) {
		return nil, nil
	})
	router.Handle("integration", "remove", func(ctx context.Context, req *bus.Request) (interface{}, error) {
		if err := scheduler.Unschedule(ctx, req.Data.IntegrationID); err != nil {
			return nil, err
		}
		return nil, nil
	})
	router.Handle("integration", "test", func(ctx context.Context, req *bus.Request) (interface{}, error) {
		return provider.TestAuth(ctx, &req.Data), nil
	})

	router.Handle("orders", "create", func(ctx context.Context, req *bus.Request) (interface{}, error) {
		var payload domain.CreateOrderPayload
		if err := decodePayload(req, &payload); err != nil {
			return nil, err
		}
		return provider.CreateOrder(ctx, &payload, &req.Data)
	})
	router.Handle("orders", "cancel", func(ctx context.Context, req *bus.Request) (interface{}, error) {
		var payload domain.IDsPayload
		if err := decodePayload(req, &payload); err != nil {
			return nil, err
		}
		return nil, provider.CancelOrder(ctx, &payload, &req.Data)
	})
	router.Handle("orders", "testsCancel", func(ctx context.Context, req *bus.Request) (interface{}, error) {
		var payload domain.IDsPayload
		if err := decodePayload(req, &payload); err != nil {
			return nil, err
		}
		return nil, provider.CancelOrderTest(ctx, &payload, &req.Data)
	})

	router.Handle("sexes", "list", func(ctx context.Context, req *bus.Request) (interface{}, error) {
		return provider.GetSexes(ctx, &req.Data)
	})
	router.Handle("species", "list", func(ctx context.Context, req *bus.Request) (interface{}, error) {
		return provider.GetSpecies(ctx, &req.Data)
	})
	router.Handle("breeds", "list", func(ctx context.Context, req *bus.Request) (interface{}, error) {
		return provider.GetBreeds(ctx, &req.Data)
	})
	router.Handle("devices", "list", func(ctx context.Context, req *bus.Request) (interface{}, error) {
		return provider.GetDevices(ctx, &req.Data)
	})
	router.Handle("services", "list", func(ctx context.Context, req *bus.Request) (interface{}, error) {
		return provider.GetServices(ctx, &req.Data)
	})
}

func decodePayload(req *bus.Request, out interface{}) error {
	if len(req.Data.Payload) == 0 {
		return domain.NewValidationError("missing payload", "")
	}
	if err := json.Unmarshal(req.Data.Payload, out); err != nil {
		return domain.NewValidationError("invalid payload", err.Error())
	}
	return nil
}

// newJobStore opens a dedicated Redis connection for the job hashes; the bus
// connection is tied up in pub/sub.
func newJobStore(url string) (*queue.RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return queue.NewRedisStore(redis.NewClient(opts), service.ProviderName), nil
}

func newFlagProvider(cfg config.StatsigConfig, log *logrus.Entry) (flags.Provider, func()) {
	if cfg.SecretKey == "" {
		log.Info("Statsig key not configured, using environment flags")
		return flags.NewEnvProvider(nil), func() {}
	}
	provider := flags.NewStatsigProvider(flags.StatsigConfig{
		SecretKey:   cfg.SecretKey,
		Environment: cfg.Environment,
	}, log)
	return provider, provider.Shutdown
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if strings.ToLower(cfg.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"commerce-agent/config"
	"commerce-agent/internal/api"
	"commerce-agent/internal/broker"
	"commerce-agent/internal/catalog"
	"commerce-agent/internal/lexical"
	"commerce-agent/internal/llm"
	"commerce-agent/internal/pending"
	"commerce-agent/internal/redisclient"
	"commerce-agent/internal/service"
	"commerce-agent/internal/store"
	"commerce-agent/internal/util"
	"commerce-agent/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const pendingSweepInterval = time.Minute

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting commerce agent")

	tp, err := util.InitTracer("commerce-agent", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		return
	}
	logger.Info("Server exited")
}

// components holds everything main has to start and close
type components struct {
	redis    *redisclient.Client
	db       *store.Store
	producer *broker.Producer
	local    *catalog.Local
	pending  *pending.MemoryStore
	worker   *worker.OrderEventWorker
	handler  *api.Handler
}

func (c *components) close() {
	if c.producer != nil {
		_ = c.producer.Close()
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	comp, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comp.close()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	comp.handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	if comp.local != nil && cfg.Catalog.Watch {
		g.Go(func() error { return background(comp.local.Watch(gctx)) })
	}
	if comp.pending != nil && cfg.Pending.IdleTimeout > 0 {
		g.Go(func() error { return background(comp.pending.RunSweeper(gctx, pendingSweepInterval)) })
	}
	if comp.worker != nil {
		g.Go(func() error {
			err := comp.worker.Start(gctx)
			_ = comp.worker.Stop()
			return background(err)
		})
	}

	return g.Wait()
}

// background treats cancellation as a clean stop
func background(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	comp := &components{}
	var handlerOpts []api.HandlerOption

	needsRedis := cfg.Pending.Backend == config.BackendRedis || cfg.Search.CacheBackend == config.BackendRedis
	if needsRedis {
		rc, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		comp.redis = rc
		handlerOpts = append(handlerOpts, api.WithReadinessCheck("redis", func(ctx context.Context) error {
			return rc.GetClient().Ping(ctx).Err()
		}))
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	matcher := lexical.NewMatcher(cfg.Search.FuzzyShortMaxDistance, cfg.Search.FuzzyLongMaxDistance)
	var backend catalog.Backend
	switch cfg.Catalog.Source {
	case config.CatalogSourceDummyJSON:
		backend = catalog.NewRemote(cfg.Catalog.RemoteURL, matcher)
	default:
		local, err := catalog.LoadLocal(cfg.Catalog.Path, matcher)
		if err != nil {
			comp.close()
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		comp.local = local
		backend = local
		handlerOpts = append(handlerOpts, api.WithReloader(local))
		logger.Info("Catalog loaded", zap.String("path", cfg.Catalog.Path), zap.Int("items", len(local.Items())))
	}

	var cache catalog.Cache
	if cfg.Search.CacheTTL > 0 {
		if cfg.Search.CacheBackend == config.BackendRedis {
			cache = catalog.NewRedisCache(comp.redis, cfg.Search.CacheTTL)
		} else {
			cache = catalog.NewMemoryCache(cfg.Search.CacheTTL, time.Now)
		}
	}
	resolver := catalog.NewResolver(backend, catalog.ImagePolicy(cfg.Catalog.ImageSource), cache)

	var pendingStore pending.Store
	if cfg.Pending.Backend == config.BackendRedis {
		pendingStore = pending.NewRedisStore(comp.redis, cfg.Pending.IdleTimeout)
	} else {
		comp.pending = pending.NewMemoryStore(pending.WithIdleTimeout(cfg.Pending.IdleTimeout))
		pendingStore = comp.pending
	}

	var orderStore store.OrderStore
	switch cfg.Orders.Backend {
	case config.BackendPostgres:
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			comp.close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		comp.db = db
		if err := db.EnsureSchema(ctx); err != nil {
			comp.close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
		orderStore = db
		handlerOpts = append(handlerOpts, api.WithReadinessCheck("postgres", func(ctx context.Context) error {
			return db.GetDB().PingContext(ctx)
		}))
		logger.Info("Database connected")
	case config.BackendMemory:
		orderStore = store.NewMemoryStore()
	default:
		fs, err := store.NewFileStore(cfg.Orders.Path)
		if err != nil {
			comp.close()
			return nil, fmt.Errorf("failed to open order file: %w", err)
		}
		orderStore = fs
	}

	var publisher broker.Publisher = broker.NoopPublisher{}
	if cfg.Kafka.Enabled() {
		comp.producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		publisher = broker.NewEventPublisher(comp.producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		var deduper worker.EventDeduper
		if comp.db != nil {
			deduper = comp.db
		}
		comp.worker = worker.NewOrderEventWorker(consumer, deduper)
	}

	var passthrough llm.Passthrough
	if cfg.LLM.Enabled() {
		bedrock, err := llm.NewBedrock(ctx, cfg.LLM.Region, cfg.LLM.ModelID)
		if err != nil {
			logger.Warn("Bedrock unavailable, using mock replies", zap.Error(err))
		} else {
			passthrough = bedrock
			logger.Info("Bedrock passthrough enabled", zap.String("model", cfg.LLM.ModelID))
		}
	}

	orders := service.NewOrderService(orderStore, resolver, publisher)
	chat := service.NewChatService(resolver, pendingStore, orders, passthrough)

	handlerOpts = append(handlerOpts, api.WithTokenDelay(cfg.Stream.TokenDelay))
	comp.handler = api.NewHandler(chat, orders, resolver, handlerOpts...)
	return comp, nil
}

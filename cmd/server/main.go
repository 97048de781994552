package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fjod/go_till/internal/cart"
	"github.com/fjod/go_till/internal/catalog"
	"github.com/fjod/go_till/internal/checkout"
	"github.com/fjod/go_till/internal/clock"
	"github.com/fjod/go_till/internal/db"
	"github.com/fjod/go_till/internal/domain"
	"github.com/fjod/go_till/internal/draft"
	"github.com/fjod/go_till/internal/outbox"
	"github.com/fjod/go_till/internal/transaction"
	transport "github.com/fjod/go_till/internal/transport/http"
)

type Config struct {
	HTTPPort        string
	DBPath          string
	MigrationsPath  string
	RedisAddr       string
	MongoURI        string
	MongoDatabase   string
	KafkaBrokers    []string
	KafkaTopic      string
	DeferredMethods []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		DBPath:          getEnv("DB_PATH", "till.db"),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "migrations"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		MongoURI:        getEnv("MONGO_URI", ""),
		MongoDatabase:   getEnv("MONGO_DATABASE", "till"),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "sale-events"),
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if methods := getEnv("DEFERRED_METHODS", ""); methods != "" {
		cfg.DeferredMethods = strings.Split(methods, ",")
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg := loadConfig()
	clk := clock.NewSystem()

	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer conn.Close()

	if err := db.RunMigrations(conn, cfg.MigrationsPath); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	var catalogStore catalog.Store = catalog.NewRepository(conn)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		catalogStore = catalog.NewCachedStore(catalogStore, client, logger)
		logger.Info("catalog cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	var draftStore draft.Store
	if cfg.MongoURI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		database, err := draft.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			cancel()
			logger.Fatal("failed to connect to mongodb", zap.Error(err))
		}
		if err := draft.CreateIndexes(ctx, database); err != nil {
			cancel()
			logger.Fatal("failed to create draft indexes", zap.Error(err))
		}
		cancel()
		draftStore = draft.NewMongoStore(database, clk)
		logger.Info("draft store backed by mongodb", zap.String("database", cfg.MongoDatabase))
	} else {
		draftStore = draft.NewMemoryStore(clk)
		logger.Warn("draft store is in-memory, parked sales do not survive restart")
	}

	ledger := transaction.NewRepository(conn, clk)
	carts := cart.NewService(catalogStore)

	policy := checkout.DefaultPolicy()
	if len(cfg.DeferredMethods) > 0 {
		policy = checkout.Policy{DeferredMethods: make(map[domain.PaymentMethod]bool)}
		for _, m := range cfg.DeferredMethods {
			policy.DeferredMethods[domain.PaymentMethod(strings.TrimSpace(m))] = true
		}
	}

	settler := checkout.NewService(ledger, ledger, carts, draftStore, clk, policy, logger)

	router := transport.NewRouter(transport.Handlers{
		Catalog:      transport.NewCatalogHandler(catalogStore, cfg.RequestTimeout),
		Cart:         transport.NewCartHandler(carts, cfg.RequestTimeout),
		Draft:        transport.NewDraftHandler(draftStore, carts, cfg.RequestTimeout),
		Checkout:     transport.NewCheckoutHandler(settler, cfg.RequestTimeout),
		Transactions: transport.NewTransactionHandler(ledger, cfg.RequestTimeout),
	}, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "go-till"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var writer outbox.MessageWriter
	if len(cfg.KafkaBrokers) > 0 {
		kw := outbox.NewWriter(cfg.KafkaTopic, cfg.KafkaBrokers...)
		defer kw.Close()
		writer = kw
		logger.Info("sale events publishing enabled", zap.Strings("brokers", cfg.KafkaBrokers))
	} else {
		logger.Warn("no kafka brokers configured, sale events stay queued in the outbox")
	}

	// The poller always runs: besides publishing, it releases stock held by
	// settlements interrupted before commit.
	poller := outbox.NewPoller(ledger, writer, clk, logger)
	g.Go(func() error {
		poller.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server exited")
}

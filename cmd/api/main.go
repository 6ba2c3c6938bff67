package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	mongoadapter "github.com/lumenfest/checkout-engine/internal/adapters/mongo"
	"github.com/lumenfest/checkout-engine/internal/adapters/postgres"
	"github.com/lumenfest/checkout-engine/internal/adapters/rabbit"
	redisadapter "github.com/lumenfest/checkout-engine/internal/adapters/redis"
	"github.com/lumenfest/checkout-engine/internal/bundle"
	"github.com/lumenfest/checkout-engine/internal/checkout"
	"github.com/lumenfest/checkout-engine/internal/clock"
	"github.com/lumenfest/checkout-engine/internal/config"
	"github.com/lumenfest/checkout-engine/internal/discount"
	"github.com/lumenfest/checkout-engine/internal/guestsync"
	httphandler "github.com/lumenfest/checkout-engine/internal/http"
	"github.com/lumenfest/checkout-engine/internal/idempotency"
	"github.com/lumenfest/checkout-engine/internal/observability"
	"github.com/lumenfest/checkout-engine/internal/payments"
	"github.com/lumenfest/checkout-engine/internal/rateLimit"
	"github.com/lumenfest/checkout-engine/internal/sweeper"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditTrail(mongoClient.Database("checkout"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	clk := clock.NewSystem()
	sw := sweeper.New(repo, rabbitPub, audit, clk, logger, cfg.SweepBatch)

	svc := checkout.NewService(checkout.Options{
		Store:     repo,
		Resolver:  bundle.NewResolver(repo),
		Discounts: discount.NewEngine(repo, clk),
		Gateway:   payments.NewGateway(cfg.GatewayBaseURL, cfg.GatewaySecret),
		Guests:    guestsync.NewClient(cfg.GuestSyncURL, cfg.GuestSyncKey),
		Audit:     audit,
		Sweeper:   sw,
		Clock:     clk,
		Logger:    logger,
		HoldTTL:   cfg.HoldTTL,
		Live:      cfg.Live,
	})

	handlers := httphandler.NewHandlers(svc, idemp)
	r := httphandler.SetupRouter(handlers, logger, rl, idemp)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}

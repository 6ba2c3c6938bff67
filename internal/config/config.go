package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN    string
	MongoURI       string
	RedisAddr      string
	RabbitURL      string
	ListenAddr     string
	HoldTTL        time.Duration
	SweepBatch     int
	SweepInterval  time.Duration
	IdempotencyTTL time.Duration
	GatewayBaseURL string
	GatewaySecret  string
	GuestSyncURL   string
	GuestSyncKey   string
	Live           bool
	OTLPEndpoint   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	holdTTL, _ := time.ParseDuration(os.Getenv("HOLD_TTL"))
	if holdTTL == 0 {
		holdTTL = 10 * time.Minute
	}
	sweepBatch, _ := strconv.Atoi(os.Getenv("SWEEP_BATCH"))
	if sweepBatch == 0 {
		sweepBatch = 20
	}
	sweepInterval, _ := time.ParseDuration(os.Getenv("SWEEP_INTERVAL"))
	if sweepInterval == 0 {
		sweepInterval = time.Minute
	}
	idempTTL, _ := time.ParseDuration(os.Getenv("IDEMPOTENCY_TTL"))
	if idempTTL == 0 {
		idempTTL = time.Hour
	}
	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	live, _ := strconv.ParseBool(os.Getenv("LIVE_MODE"))

	return &Config{
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		MongoURI:       os.Getenv("MONGO_URI"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RabbitURL:      os.Getenv("RABBIT_URL"),
		ListenAddr:     listenAddr,
		HoldTTL:        holdTTL,
		SweepBatch:     sweepBatch,
		SweepInterval:  sweepInterval,
		IdempotencyTTL: idempTTL,
		GatewayBaseURL: os.Getenv("GATEWAY_BASE_URL"),
		GatewaySecret:  os.Getenv("GATEWAY_SECRET"),
		GuestSyncURL:   os.Getenv("GUEST_SYNC_URL"),
		GuestSyncKey:   os.Getenv("GUEST_SYNC_KEY"),
		Live:           live,
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

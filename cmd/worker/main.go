package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/engage/internal/config"
	"github.com/ignite/engage/internal/pkg/logger"
	"github.com/ignite/engage/internal/repository/postgres"
	"github.com/ignite/engage/internal/service/reconcile"
	"github.com/ignite/engage/internal/tracking"
)

// The notification worker drains the SQS queue subscribed to the SES
// event topic. It shares the database with cmd/server, so a DATABASE_URL
// is required.
func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.Redact())

	if cfg.Webhooks.SQSQueueURL == "" {
		log.Fatal("SES_NOTIFICATION_QUEUE_URL is required")
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	log.Println("Connected to database")

	var dedup reconcile.Deduper = reconcile.NewMemoryDeduper(cfg.Webhooks.DedupTTL())
	if cfg.Redis.Enabled() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		dedup = reconcile.NewRedisDeduper(rdb, cfg.Webhooks.DedupTTL())
		log.Println("Using Redis for notification dedup")
	}

	reconciler := reconcile.New(postgres.NewSubscriberRepo(db), postgres.NewEventRepo(db), dedup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Webhooks.SQSRegion)}
	if cfg.SES.AccessKey != "" && cfg.SES.SecretKey != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SES.AccessKey, cfg.SES.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		log.Fatalf("aws config: %v", err)
	}

	consumer := tracking.NewConsumer(sqs.NewFromConfig(awsCfg), cfg.Webhooks.SQSQueueURL, reconciler)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		consumer.Run(ctx)
	}()
	log.Println("Notification worker running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	consumer.Stop()
	cancel()
	<-stopped
	log.Println("Worker stopped")
}

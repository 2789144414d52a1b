package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/engage/internal/api"
	"github.com/ignite/engage/internal/auth"
	"github.com/ignite/engage/internal/config"
	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/pkg/distlock"
	"github.com/ignite/engage/internal/pkg/logger"
	"github.com/ignite/engage/internal/repository/memory"
	"github.com/ignite/engage/internal/repository/postgres"
	"github.com/ignite/engage/internal/resend"
	"github.com/ignite/engage/internal/service/analytics"
	"github.com/ignite/engage/internal/service/campaign"
	"github.com/ignite/engage/internal/service/dispatch"
	"github.com/ignite/engage/internal/service/reconcile"
	"github.com/ignite/engage/internal/service/sending"
	"github.com/ignite/engage/internal/service/subscriber"
	"github.com/ignite/engage/internal/service/template"
	"github.com/ignite/engage/internal/ses"
	"github.com/ignite/engage/internal/worker"
)

// stores is one backing implementation of every repository.
type stores struct {
	campaigns   campaign.Repository
	templates   template.Repository
	subscribers interface {
		subscriber.Repository
		dispatch.Subscribers
		reconcile.SubscriberStore
	}
	events interface {
		analytics.EventRepository
		reconcile.EventStore
	}
	activity analytics.ActivityRepository
}

func openStores(db *sql.DB) stores {
	if db == nil {
		return stores{
			campaigns:   memory.NewCampaignRepo(),
			templates:   memory.NewTemplateRepo(),
			subscribers: memory.NewSubscriberRepo(),
			events:      memory.NewEventRepo(),
			activity:    memory.NewActivityRepo(),
		}
	}
	return stores{
		campaigns:   postgres.NewCampaignRepo(db),
		templates:   postgres.NewTemplateRepo(db),
		subscribers: postgres.NewSubscriberRepo(db),
		events:      postgres.NewEventRepo(db),
		activity:    postgres.NewActivityRepo(db),
	}
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func openRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func newTransport(ctx context.Context, cfg *config.Config) (sending.Transport, error) {
	switch cfg.Transport.Provider {
	case config.ProviderResend:
		if cfg.Resend.APIKey == "" {
			return nil, fmt.Errorf("resend.api_key is required for the resend provider")
		}
		return resend.NewClient(cfg.Resend.APIKey), nil
	default:
		return ses.NewClient(ctx, cfg.SES)
	}
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.Redact())

	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = openDatabase(cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		log.Println("Connected to PostgreSQL")
	} else {
		log.Println("No DATABASE_URL set, using in-memory repositories")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = openRedis(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Println("Connected to Redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport, err := newTransport(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s transport: %v", cfg.Transport.Provider, err)
	}
	log.Printf("Email transport: %s (from %s)", cfg.Transport.Provider, cfg.Transport.FromEmail)

	st := openStores(db)
	templates := template.NewService(st.templates, st.activity)
	campaigns := campaign.NewService(st.campaigns, st.activity)
	campaigns.SetTemplates(templates)
	subscribers := subscriber.NewService(st.subscribers, st.activity)

	dispatcher := dispatch.New(campaigns, st.subscribers, st.events, st.activity, transport, dispatch.Config{
		From:            cfg.Transport.FromEmail,
		SendTimeout:     cfg.Transport.SendTimeout(),
		AllFailedStatus: domain.CampaignStatus(cfg.Dispatch.AllFailedStatus),
	})
	if locks := distlock.NewFactory(redisClient, db, cfg.Dispatch.LockTTL()); locks != nil {
		dispatcher.SetLocks(locks)
	}

	runner := worker.NewSendRunner(dispatcher, worker.SendRunnerConfig{
		NumWorkers: cfg.Dispatch.Workers,
		QueueSize:  cfg.Dispatch.QueueSize,
	})
	if err := runner.Start(); err != nil {
		log.Fatalf("Failed to start send workers: %v", err)
	}

	var dedup reconcile.Deduper = reconcile.NewMemoryDeduper(cfg.Webhooks.DedupTTL())
	if redisClient != nil {
		dedup = reconcile.NewRedisDeduper(redisClient, cfg.Webhooks.DedupTTL())
	}
	reconciler := reconcile.New(st.subscribers, st.events, dedup)
	if cfg.Webhooks.ConfirmSubscriptions {
		reconciler.SetConfirmer(reconcile.NewConfirmer(&http.Client{Timeout: 10 * time.Second}))
		log.Println("SNS subscription confirmation enabled")
	}

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to initialize auth: %v", err)
	}
	if cfg.Auth.DevMode {
		log.Printf("Dev mode: unauthenticated requests act as %s", cfg.Auth.DevOwnerID)
	}

	handlers := api.NewHandlers(
		campaigns,
		subscribers,
		templates,
		dispatcher,
		runner,
		analytics.NewService(st.events, st.activity),
		reconciler,
	)
	server := api.NewServer(cfg.Server, handlers, api.NewHealthChecker(db, redisClient, runner), verifier)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// In-flight sends stop issuing and finalize their campaigns.
	runner.Stop()
	cancel()

	log.Println("Server stopped")
}

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

	"github.com/redis/go-redis/v9"
	_ "github.com/lib/pq"

	"github.com/ignite/campaign-sync-engine/internal/api"
	"github.com/ignite/campaign-sync-engine/internal/config"
	"github.com/ignite/campaign-sync-engine/internal/dds"
	"github.com/ignite/campaign-sync-engine/internal/dds/snowflake"
	"github.com/ignite/campaign-sync-engine/internal/guard"
	"github.com/ignite/campaign-sync-engine/internal/mlp"
	"github.com/ignite/campaign-sync-engine/internal/pkg/logger"
	"github.com/ignite/campaign-sync-engine/internal/progress"
	"github.com/ignite/campaign-sync-engine/internal/repository/postgres"
	"github.com/ignite/campaign-sync-engine/internal/syncpipeline"
	"github.com/ignite/campaign-sync-engine/internal/tierengine"
	"github.com/ignite/campaign-sync-engine/internal/transition"
)

func main() {
	log.Println("Starting campaign sync engine...")

	configPath := os.Getenv("SYNC_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	switch cfg.Logging.Level {
	case "debug":
		logger.SetLevel(logger.DEBUG)
	case "warn":
		logger.SetLevel(logger.WARN)
	case "error":
		logger.SetLevel(logger.ERROR)
	default:
		logger.SetLevel(logger.INFO)
	}

	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("ping database: %v", err)
	}
	log.Println("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	mlpClient := mlp.NewClient(mlp.Config{
		BaseURL:     cfg.MLP.BaseURL,
		APIKey:      cfg.MLP.APIKey,
		Timeout:     cfg.MLP.Timeout(),
		MaxRetries:  cfg.API.MaxRetries,
		MinInterval: cfg.API.MinInterval(),
	}, redisClient)

	ddsClient := dds.NewClient(dds.Config{
		BaseURL:         cfg.DDS.BaseURL,
		APIKey:          cfg.DDS.APIKey,
		Token:           cfg.DDS.Token,
		Timeout:         cfg.DDS.Timeout(),
		LoopbackTimeout: cfg.DDS.LoopbackTimeout(),
		MaxRetries:      cfg.API.MaxRetries,
		LoopbackMode:    cfg.DDS.LoopbackMode,
		ProductCodeMap:  cfg.ProductCodeMap,
	}, nil)

	campaigns := postgres.NewCampaignRepo(db)
	fields := postgres.NewFieldRepo(db)
	groups := postgres.NewGroupRepo(db)
	subscribers := postgres.NewSubscriberRepo(db)
	memberships := postgres.NewMembershipRepo(db)
	syncs := postgres.NewSyncRepo(db)
	transitions := postgres.NewTransitionRepo(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := buildProgressStore(ctx, cfg, db, redisClient)
	if err != nil {
		log.Fatalf("build progress store: %v", err)
	}

	engine := tierengine.New(cfg.TierEngineConfig())
	resourceGuard := guard.NewWithMLP(cfg.Sync, syncs, mlpClient)

	pipeline := syncpipeline.New(cfg, mlpClient, ddsClient, syncpipeline.Repos{
		Campaigns:   campaigns,
		Fields:      fields,
		Groups:      groups,
		Subscribers: subscribers,
		Memberships: memberships,
		Syncs:       syncs,
	}, store, engine, resourceGuard)

	executor := transition.New(mlpClient, ddsClient, transition.Repos{
		Campaigns:   campaigns,
		Groups:      groups,
		Transitions: transitions,
	}, engine).WithDailyRateLimit(cfg.Transition.MaxPerSubscriberDay)

	var warehouse *snowflake.Client
	if cfg.Snowflake.Enabled {
		warehouse, err = snowflake.NewClient(cfg.SnowflakeWarehouseConfig())
		if err != nil {
			log.Fatalf("connect to snowflake warehouse: %v", err)
		}
		defer warehouse.Close()
		executor.WithWarehouse(warehouse)
		log.Println("Snowflake cross-validation warehouse enabled")
	}

	apiKey := os.Getenv("SYNC_API_KEY")
	server := api.NewServer(pipeline, executor, store, mlpClient, ddsClient, groups, warehouse, apiKey)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	go func() {
		log.Printf("Operator API listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("operator API stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("operator API shutdown error: %v", err)
	}
	if err := resourceGuard.OnShutdown(shutdownCtx); err != nil {
		log.Printf("resource guard shutdown record error: %v", err)
	}

	time.Sleep(2 * time.Second)
	log.Println("Stopped")
}

// buildProgressStore selects the Postgres or DynamoDB progress backend
// per configuration, following the sync pipeline's pluggable progress.Store.
func buildProgressStore(ctx context.Context, cfg *config.Config, db *sql.DB, redisClient *redis.Client) (progress.Store, error) {
	if cfg.DynamoDB.Enabled {
		return progress.NewDynamoDBStore(ctx, cfg.DynamoDB.Table, cfg.DynamoDB.Region, cfg.DynamoDB.GetAWSProfile())
	}
	return progress.NewPostgresStore(db, redisClient), nil
}

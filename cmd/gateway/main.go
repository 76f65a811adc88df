package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"aigate/internal/accounting"
	"aigate/internal/admin"
	"aigate/internal/config"
	"aigate/internal/httpapi"
	"aigate/internal/logging"
	"aigate/internal/models"
	"aigate/internal/providers"
	"aigate/internal/queue"
	"aigate/internal/ratelimit"
	"aigate/internal/storage"
	"aigate/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Open the store once: memory when no database is configured,
	// Postgres otherwise
	var (
		keys   storage.KeyStore
		ledger storage.UsageLedger
		admins storage.AdminStore
		db     *storage.DB
	)
	if cfg.Database.URL == "" {
		log.Println("No database configured, using in-memory store")
		mem := storage.NewMemoryStore()
		keys, ledger, admins = mem, mem, mem

		if err := seedBootstrapAdmin(mem, cfg.Admin); err != nil {
			log.Fatalf("Failed to seed bootstrap admin: %v", err)
		}
	} else {
		db, err = storage.NewDB(storage.DBConfig{
			DSN:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := storage.EnsureSchema(context.Background(), db); err != nil {
			log.Fatalf("Failed to ensure schema: %v", err)
		}
		pg := storage.NewPostgresStore(db)
		keys, ledger = pg, pg
		admins = storage.NewAdminUserRepository(db)
	}

	// Redis backs the rate limiter and, optionally, the archive queue
	var redisClient *redis.Client
	var limiter ratelimit.Limiter = ratelimit.NewNoopLimiter()
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		limiter = ratelimit.NewRateLimiter(redisClient)
	}

	// Archive pipeline (best-effort observability)
	var archive logging.Sink = logging.NewNoopSink()
	if cfg.Archive.Enabled {
		archive, err = buildArchiveSink(cfg)
		if err != nil {
			log.Fatalf("Failed to build archive sink: %v", err)
		}
	}

	provider := providers.NewPollinationsProvider(
		cfg.Downstream.TextBaseURL,
		cfg.Downstream.ImageBaseURL,
		cfg.Downstream.RequestTimeout,
	)

	adminService := admin.NewService(keys, ledger, admin.ServiceConfig{
		SelfServeDailyLimit:       cfg.Gateway.SelfServeDailyLimit,
		SelfServeCredits:          cfg.Gateway.SelfServeCredits,
		IssueTTL:                  cfg.Gateway.IssueTTL,
		DefaultRateLimitPerMinute: cfg.Gateway.RateLimitPerMinute,
	})

	mux := httpapi.NewRouter(&httpapi.Dependencies{
		Keys:      keys,
		Engine:    accounting.NewEngine(keys),
		Admin:     adminService,
		Auth:      admin.NewAuthenticator(admins),
		RateLimit: limiter,
		Provider:  provider,
		Archive:   archive,
		TextCost:  cfg.Gateway.TextCost,
		ImageCost: cfg.Gateway.ImageCost,
	})

	// Create HTTP server
	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("AI gateway listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Drain the archive sink before closing shared resources
	if err := archive.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown archive sink: %v", err)
	}

	_ = provider.Close()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}

	log.Println("Server exited")
}

// seedBootstrapAdmin provisions the operator account for in-memory
// deployments, where cmd/init-admin has no database to write to.
func seedBootstrapAdmin(store storage.AdminStore, cfg config.AdminConfig) error {
	if cfg.BootstrapUsername == "" || cfg.BootstrapPassword == "" {
		log.Println("No bootstrap admin configured, admin endpoints will reject all requests")
		return nil
	}

	hash, err := utils.HashPasswordArgon2(cfg.BootstrapPassword)
	if err != nil {
		return err
	}

	err = store.CreateAdmin(context.Background(), &models.AdminUser{
		ID:           uuid.New(),
		Username:     cfg.BootstrapUsername,
		PasswordHash: hash,
		Enabled:      true,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	log.Printf("Seeded bootstrap admin %q", cfg.BootstrapUsername)
	return nil
}

// buildArchiveSink wires the queue, the batch writer, and the worker.
// S3 output is selected by a configured bucket; otherwise batches land
// in rotated local files.
func buildArchiveSink(cfg *config.Config) (logging.Sink, error) {
	qcfg := queue.DefaultConfig("usage-archive")
	qcfg.BatchSize = cfg.Archive.FlushSize
	qcfg.UseRedis = cfg.Archive.UseRedisQueue && cfg.Redis.Address != ""
	qcfg.RedisAddr = cfg.Redis.Address
	qcfg.RedisPassword = cfg.Redis.Password
	qcfg.RedisDB = cfg.Redis.DB

	q, err := queue.New(qcfg)
	if err != nil {
		return nil, err
	}

	var writer logging.RecordWriter
	if cfg.Archive.S3Bucket != "" {
		writer, err = logging.NewS3Writer(
			context.Background(),
			cfg.Archive.S3Bucket,
			cfg.Archive.S3Region,
			cfg.Archive.S3Prefix,
			cfg.Archive.PodName,
		)
		if err != nil {
			return nil, err
		}
	} else {
		writer, err = logging.NewFileWriter(
			cfg.Archive.FilePathTemplate,
			cfg.Archive.FileMaxSize,
			cfg.Archive.FileMaxFiles,
		)
		if err != nil {
			return nil, err
		}
	}

	return logging.NewArchiveSink(q, writer, logging.ArchiveSinkConfig{
		FlushSize:     cfg.Archive.FlushSize,
		FlushInterval: cfg.Archive.FlushInterval,
	}), nil
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/media"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/scheduler"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/upload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		db       *sql.DB
		postRepo repository.PostRepository
		accounts repository.SocialAccountRepository
		claims   repository.ClaimRepository
	)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURI, Password: cfg.RedisPassword})
	defer rdb.Close()

	switch cfg.StoreBackend {
	case "memory":
		log.Println("Using in-memory post store")
		postRepo = repository.NewMemoryPostRepository()
		accounts = repository.NewMemorySocialAccountRepository()
		claims = repository.NewMemoryClaimRepository()
	default:
		var err error
		db, err = sql.Open("postgres", cfg.PostgresURI)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer closeDB(db)

		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("Database is unreachable: %v", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Redis is unreachable: %v", err)
		}
		postRepo = repository.NewPostRepository(db)
		accounts = repository.NewSocialAccountRepository(db)
		claims = repository.NewRedisClaimRepository(rdb)
	}

	r2Service := service.NewR2Service(*cfg)

	var storedPrefixes []string
	if cfg.R2.PublicBaseURL != "" {
		storedPrefixes = append(storedPrefixes, cfg.R2.PublicBaseURL)
	}
	mediaEngine, err := media.NewEngine(media.Options{
		WorkDir:        cfg.Media.WorkDir,
		MaxSourceBytes: cfg.Media.MaxSourceBytes,
		ChunkThreshold: cfg.Media.ChunkThreshold,
		HardCeiling:    cfg.Media.HardCeiling,
		TargetBytes:    cfg.Media.TargetBytes,
		MinUsefulBytes: cfg.Media.MinUsefulBytes,
		StallTimeout:   cfg.Media.StallTimeout,
		StoredPrefixes: storedPrefixes,
		YtDlpPath:      cfg.Media.YtDlpPath,
		FFmpegPath:     cfg.Media.FFmpegPath,
		FFprobePath:    cfg.Media.FFprobePath,
	}, media.WithToolRunner(media.ExecRunner{}), media.WithObjectStore(r2Service))
	if err != nil {
		log.Fatalf("Failed to set up media engine: %v", err)
	}

	uploadEngine := upload.NewEngine(cfg.Upload.ChunkSize, cfg.Upload.PhaseTimeout)

	registry := platform.NewRegistry(
		platform.NewFacebook(platform.FacebookOptions{
			Version:        cfg.Upload.GraphVersion,
			PollInterval:   cfg.Upload.PollInterval,
			PollTimeout:    cfg.Upload.PollTimeout,
			VerifyWindow:   cfg.Upload.VerifyWindow,
			RequestsPerSec: cfg.Upload.RequestsPerSec,
		}, uploadEngine),
		platform.NewInstagram(platform.InstagramOptions{
			PollInterval:   cfg.Upload.PollInterval,
			PollTimeout:    cfg.Upload.PollTimeout,
			RequestsPerSec: cfg.Upload.RequestsPerSec,
		}, r2Service),
		platform.NewTiktok(platform.TiktokOptions{
			PollInterval:   cfg.Upload.PollInterval,
			PollTimeout:    cfg.Upload.PollTimeout,
			RequestsPerSec: cfg.Upload.RequestsPerSec,
		}, r2Service),
		platform.NewYoutube(platform.YoutubeOptions{
			PollInterval: cfg.Upload.PollInterval,
			PollTimeout:  cfg.Upload.PollTimeout,
		}, uploadEngine),
	)

	publishService := service.NewPublishService(postRepo,
		service.NewAccountResolver(accounts, cfg.SecretKey),
		mediaEngine,
		registry,
		service.PublishOptions{
			AcquireTimeout: cfg.Media.AcquireTimeout,
			PublishTimeout: cfg.Upload.PublishTimeout,
		})

	claimer := scheduler.NewClaimer(postRepo, claims, cfg.Scheduler.ClaimTTL)
	dispatcher := scheduler.NewDispatcher(publishService, claimer, cfg.Scheduler.Concurrency)

	schedOpts := scheduler.Options{
		SweepInterval:  cfg.Scheduler.SweepInterval,
		TimerHorizon:   cfg.Scheduler.TimerHorizon,
		StallThreshold: cfg.Scheduler.StallThreshold,
	}

	var (
		sched       *scheduler.Scheduler
		asynqServer *asynq.Server
	)
	if cfg.Scheduler.TimerBackend == "asynq" {
		redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI, Password: cfg.RedisPassword}
		q := queue.NewQueue(redisConn)
		defer q.Close()

		sched = scheduler.New(postRepo, claimer, dispatcher, schedOpts, scheduler.WithTimer(q))

		asynqServer = asynq.NewServer(redisConn, asynq.Config{
			Concurrency: cfg.Scheduler.Concurrency,
		})
		mux := asynq.NewServeMux()
		queue.NewWorker(sched).Register(mux)

		log.Println("Starting the Asynq server...")
		if err := asynqServer.Start(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	} else {
		sched = scheduler.New(postRepo, claimer, dispatcher, schedOpts)
	}

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	retryJob := job.NewRetryJob(postRepo, claimer, dispatcher)
	if err := retryJob.RunScheduled(ctx, cfg.Scheduler.RetryInterval.String()); err != nil {
		log.Fatalf("Failed to start retry job: %v", err)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	authMiddleware := middleware.NewAuthMiddleware(*cfg)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	schedule := handlers.NewScheduleHandler(postRepo, sched)
	api.Get("/posts/:id", schedule.PostStatus)
	api.Post("/posts/:id/schedule", schedule.SchedulePost)
	api.Delete("/posts/:id/schedule", schedule.CancelSchedule)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on http://localhost:%s", cfg.Port)

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Failed to shut down server: %v", err)
	}
	retryJob.Stop()
	sched.Stop()
	if asynqServer != nil {
		asynqServer.Shutdown()
	}
	// In-flight attempts record their own outcome before returning.
	dispatcher.Wait()
	log.Println("Server shutdown complete.")
}

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l})))
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

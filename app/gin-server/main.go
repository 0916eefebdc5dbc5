package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yooproctor/config"
	"github.com/yoockh/yooproctor/internal/api/handlers"
	"github.com/yoockh/yooproctor/internal/api/middleware"
	"github.com/yoockh/yooproctor/internal/api/routes"
	"github.com/yoockh/yooproctor/internal/logger"
	mongorepo "github.com/yoockh/yooproctor/internal/repositories/mongo"
	pgrepo "github.com/yoockh/yooproctor/internal/repositories/postgres"
	"github.com/yoockh/yooproctor/internal/services"
	"github.com/yoockh/yooproctor/internal/workers"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.InitMongo(); err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.WithError(err).Fatal("MongoDB index error")
	}
	log.Info("MongoDB connected")

	if err := config.InitPostgres(); err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	if err := config.MigratePostgres(); err != nil {
		log.WithError(err).Fatal("PostgreSQL migration error")
	}
	log.Info("PostgreSQL connected")

	settings := config.LoadProctorSettings()

	// chunk archiving needs the stream, so Redis is only optional without it
	if config.RedisConfigured() || settings.ArchiveChunks {
		if err := config.InitRedis(); err != nil {
			log.WithError(err).Fatal("Redis init error")
		}
		log.Info("Redis connected")
	} else {
		log.Warn("REDIS_ADDR not set, keeping session markers in memory (single instance only)")
	}

	store, err := config.InitStorage(ctx)
	if err != nil {
		log.WithError(err).Fatal("storage init error")
	}
	defer store.Close()

	mdb := config.MongoDatabase()

	interviews := services.NewInterviewService(pgrepo.NewInterviewRepo(config.PostgresDB))
	results := services.NewResultService(mongorepo.NewResultRepo(mdb), interviews, log)
	recordings := services.NewRecordingService(store)

	var archive *services.ChunkArchive
	if settings.ArchiveChunks {
		archive = services.NewChunkArchive(config.RedisClient, services.ChunkStream)
		pool := &workers.ChunkWorkerPool{
			Redis:      config.RedisClient,
			Chunks:     mongorepo.NewChunkRepo(mdb),
			NumWorkers: settings.ArchiveWorkers,
			TTL:        settings.ArchiveTTL,
			Logger:     log,
			Stream:     services.ChunkStream,
		}
		if err := pool.Start(ctx); err != nil {
			log.WithError(err).Fatal("chunk worker init error")
		}
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	proctorHandler := handlers.NewProctorHandler(
		interviews, results, recordings,
		config.InitCache(),
		archive,
		handlers.ProctorOptions{
			RedirectDelay:  settings.RedirectDelay,
			CommandTimeout: settings.CommandTimeout,
			MarkerTTL:      settings.MarkerTTL,
			AllowedOrigins: settings.AllowedOrigins,
		},
		log,
	)
	routes.RegisterRoutes(r, routes.Deps{
		Auth:      config.LoadAuth(),
		Interview: handlers.NewInterviewHandler(interviews, results, recordings, settings.PlaybackTTL),
		Proctor:   proctorHandler,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		log.WithField("port", port).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	shutdown(srv, proctorHandler, log)
}

func shutdown(srv *http.Server, sessions *handlers.ProctorHandler, log *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	// websocket sessions are hijacked and not covered by srv.Shutdown; they
	// still write results and markers, so stores close after them
	if err := sessions.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("proctor sessions did not stop in time")
	}
	if config.MongoClient != nil {
		_ = config.MongoClient.Disconnect(ctx)
	}
	if config.RedisClient != nil {
		_ = config.RedisClient.Close()
	}
	log.Info("stopped")
}

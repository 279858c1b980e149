package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/yoointerview/config"
	"github.com/yoockh/yoointerview/internal/api/handlers"
	"github.com/yoockh/yoointerview/internal/api/middleware"
	"github.com/yoockh/yoointerview/internal/api/routes"
	"github.com/yoockh/yoointerview/internal/cache"
	"github.com/yoockh/yoointerview/internal/engine"
	"github.com/yoockh/yoointerview/internal/logger"
	"github.com/yoockh/yoointerview/internal/providers/llm"
	mongorepo "github.com/yoockh/yoointerview/internal/repositories/mongo"
	pgrepo "github.com/yoockh/yoointerview/internal/repositories/postgres"
	"github.com/yoockh/yoointerview/internal/services"
	"github.com/yoockh/yoointerview/internal/storage"
	"github.com/yoockh/yoointerview/internal/workers"
)

const interviewerInstruction = "You are a friendly, professional job interviewer. Keep questions concise and specific."

func main() {
	log := logger.New()
	settings := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init MongoDB
	mdb, err := config.InitMongo(settings.MongoDB)
	if err != nil {
		log.Fatalf("MongoDB init error: %v", err)
	}
	if err := config.EnsureMongoIndexes(mdb); err != nil {
		log.Fatalf("MongoDB index error: %v", err)
	}
	log.Info("MongoDB connected")

	// Init PostgreSQL
	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	if err := config.MigratePostgres(); err != nil {
		log.Fatalf("PostgreSQL migrate error: %v", err)
	}
	log.Info("PostgreSQL connected")

	// Init Redis
	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	log.Info("Redis connected")

	sessionSvc := services.NewSessionService(mongorepo.NewSessionRepo(mdb))
	convSvc := services.NewConversationService(pgrepo.NewConversationRepo(config.PostgresDB))
	resumeSvc := services.NewResumeService(pgrepo.NewProfileRepo(config.PostgresDB))

	var provider llm.Provider
	if settings.VertexProject != "" {
		vg, err := llm.NewVertexGemini(ctx, settings.VertexProject, settings.VertexLocation, llm.VertexOptions{
			Model:             settings.VertexModel,
			Temperature:       0.4,
			SystemInstruction: interviewerInstruction,
		})
		if err != nil {
			log.Fatalf("Vertex init error: %v", err)
		}
		defer vg.Close()
		provider = vg
	} else {
		log.Warn("VERTEX_PROJECT_ID not set, using the built-in question bank and heuristic evaluation")
	}

	var (
		uploader storage.Uploader
		signer   storage.Signer
	)
	if settings.GCSBucket != "" {
		gcs, err := storage.NewGCSUploader(ctx, settings.GCSBucket)
		if err != nil {
			log.Fatalf("GCS init error: %v", err)
		}
		defer gcs.Close()
		uploader, signer = gcs, gcs
	}

	reports := &workers.RedisReportQueue{Redis: config.RedisClient, Stream: settings.ReportStream}
	pool := &workers.ReportWorkerPool{
		Redis:         config.RedisClient,
		Conversations: convSvc,
		Sessions:      sessionSvc,
		Uploader:      uploader,
		NumWorkers:    settings.ReportWorkers,
		Logger:        log,
		Stream:        settings.ReportStream,
	}
	if err := pool.Start(ctx); err != nil {
		log.Fatalf("report workers: %v", err)
	}

	manager := engine.NewManager(engine.ManagerConfig{
		Store:        engine.NewStore(cache.NewRedisCache(config.RedisClient, "interview:realtime"), settings.SessionTTL),
		Sessions:     sessionSvc,
		Questions:    &engine.QuestionGenerator{LLM: provider, Log: log},
		Evaluator:    &engine.LLMEvaluator{LLM: provider, Fallback: engine.Heuristic{}, Log: log},
		Reports:      reports,
		Log:          log,
		NumQuestions: settings.NumQuestions,
	})

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	routes.RegisterRoutes(r, routes.Deps{
		Realtime:     handlers.NewRealtimeHandler(manager, resumeSvc, settings.PublicPath),
		WS:           handlers.NewWSHandler(manager, log),
		Session:      handlers.NewSessionHandler(sessionSvc, signer),
		Conversation: handlers.NewConversationHandler(convSvc),
		Auth:         middleware.JWTConfigFromEnv(),
	})

	srv := &http.Server{Addr: ":" + settings.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.WithField("port", settings.Port).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	_ = config.CloseRedis()
	_ = config.ClosePostgres()
	_ = config.CloseMongo(shutdownCtx)
}

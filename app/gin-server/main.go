package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/meetlingo/meetlingo/config"
	"github.com/meetlingo/meetlingo/internal/api/handlers"
	"github.com/meetlingo/meetlingo/internal/api/middleware"
	"github.com/meetlingo/meetlingo/internal/api/routes"
	"github.com/meetlingo/meetlingo/internal/cache"
	"github.com/meetlingo/meetlingo/internal/hub"
	"github.com/meetlingo/meetlingo/internal/logger"
	"github.com/meetlingo/meetlingo/internal/providers/stt"
	"github.com/meetlingo/meetlingo/internal/providers/translate"
	"github.com/meetlingo/meetlingo/internal/providers/tts"
	mongorepo "github.com/meetlingo/meetlingo/internal/repositories/mongo"
	pgrepo "github.com/meetlingo/meetlingo/internal/repositories/postgres"
	"github.com/meetlingo/meetlingo/internal/services"
	"github.com/meetlingo/meetlingo/internal/storage"
	"github.com/meetlingo/meetlingo/internal/workers"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.InitMongo(); err != nil {
		log.WithError(err).Fatal("failed to connect to mongo")
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.WithError(err).Fatal("failed to ensure mongo indexes")
	}
	if err := config.InitPostgres(); err != nil {
		log.WithError(err).Fatal("failed to connect to postgres")
	}
	if err := config.InitRedis(); err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}

	projectID := os.Getenv("GCP_PROJECT_ID")
	location := getenv("GCP_LOCATION", "us-central1")
	model := getenv("TRANSLATE_MODEL", "gemini-1.5-flash")

	translator, err := translate.NewVertexGemini(ctx, projectID, location, model)
	if err != nil {
		log.WithError(err).Fatal("failed to init translation provider")
	}
	defer translator.Close()

	var sttProvider stt.Provider
	if p, err := stt.NewGoogleSpeech(ctx); err != nil {
		log.WithError(err).Warn("speech-to-text unavailable, audio utterances disabled")
	} else {
		sttProvider = p
		defer p.Close()
	}

	var synthesizer tts.Provider
	if p, err := tts.NewGoogleTTS(ctx); err != nil {
		log.WithError(err).Warn("text-to-speech unavailable, transcripts will be text-only")
	} else {
		synthesizer = p
		defer p.Close()
	}

	var uploader storage.Uploader
	if bucket := os.Getenv("AUDIO_BUCKET"); bucket != "" {
		u, err := storage.NewGCSUploader(ctx, bucket)
		if err != nil {
			log.WithError(err).Warn("audio bucket unavailable, audio stays inline")
		} else {
			uploader = u
			defer u.Close()
		}
	}

	sessionRepo := mongorepo.NewSessionRepo(config.MongoDatabase())
	transcriptRepo := pgrepo.NewTranscriptRepo(config.PostgresDB)
	sessionCache := cache.NewRedisCache(config.RedisClient)

	cooldown := 24 * time.Hour
	if v := os.Getenv("SESSION_CODE_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cooldown = d
		}
	}

	sessionSvc := services.NewSessionService(sessionRepo, sessionCache, cooldown)
	utteranceSvc := services.NewUtteranceService(
		translator,
		synthesizer,
		uploader,
		targetLanguages(),
		log,
	)
	transcriptSvc := services.NewTranscriptService(transcriptRepo)

	sink := &workers.TranscriptStream{
		Redis:  config.RedisClient,
		Stream: workers.DefaultStream,
	}
	h := hub.New(log, sink)

	persist := &workers.PersistWorkerPool{
		Redis:       config.RedisClient,
		Transcripts: transcriptRepo,
		NumWorkers:  3,
		Logger:      log,
	}
	if err := persist.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start persistence workers")
	}

	r := gin.Default()
	r.Use(middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Session:    handlers.NewSessionHandler(sessionSvc, h),
		Transcript: handlers.NewTranscriptHandler(sessionSvc, transcriptSvc, h),
		WS:         handlers.NewWSHandler(sessionSvc, utteranceSvc, h, sttProvider, log),
	})

	port := getenv("PORT", "8080")
	log.WithField("port", port).Info("starting server")
	if err := r.Run(":" + port); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func targetLanguages() []string {
	raw := getenv("TARGET_LANGUAGES", "ko,bn,en")
	var out []string
	for _, l := range strings.Split(raw, ",") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

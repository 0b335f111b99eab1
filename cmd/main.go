package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nightloom/server/internal/config"
	"nightloom/server/internal/engine"
	"nightloom/server/internal/generators"
	"nightloom/server/internal/graph"
	"nightloom/server/internal/interfaces"
	"nightloom/server/internal/logging"
	"nightloom/server/internal/memory"
	"nightloom/server/internal/models"
	"nightloom/server/internal/prompts"
	"nightloom/server/internal/storage"
	"nightloom/server/internal/web"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		cfg = config.Default()
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Storage is optional; missing backends degrade the matching features.
	mysqlStore, err := storage.NewMySQLStore(cfg.Storage.MySQL)
	if err != nil {
		logger.Warn("MySQL unavailable, turn archive disabled", zap.Error(err))
		mysqlStore = nil
	} else {
		defer mysqlStore.Close()
		logger.Info("MySQL connected")
	}

	redisStore, err := storage.NewRedisStore(cfg.Storage.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, graph persistence and feed disabled", zap.Error(err))
		redisStore = nil
	} else {
		defer redisStore.Close()
		logger.Info("Redis connected")
	}

	// Generative backends.
	gemini := generators.NewGeminiClient(cfg.AI.Gemini, cfg.AI.Visual, logger)
	if !gemini.Configured() {
		logger.Warn("no Gemini API key, image/speech/video generation disabled")
	}

	var textGen interfaces.TextGenerator
	switch cfg.AI.Provider {
	case "openai":
		textGen = generators.NewOpenAIClient(cfg.AI.OpenAI, logger)
		logger.Info("text backend: openai-compatible", zap.String("model", cfg.AI.OpenAI.Model))
	default:
		textGen = gemini
		logger.Info("text backend: gemini", zap.String("model", cfg.AI.Gemini.TextModel))
	}

	var embedder interfaces.Embedder
	if gemini.Configured() {
		e, err := generators.NewGenAIEmbedder(context.Background(), cfg.AI.Gemini.APIKey, cfg.AI.Gemini.EmbeddingModel)
		if err != nil {
			logger.Warn("embedder unavailable, memory recall degrades to recency", zap.Error(err))
		} else {
			embedder = e
		}
	}

	// Pipelines.
	promptEngine := prompts.NewTemplateEngine()
	if err := promptEngine.InitializeDefaultTemplates(); err != nil {
		logger.Fatal("failed to register prompt templates", zap.Error(err))
	}

	roster := models.DefaultRoster()
	manager := engine.NewManager(roster)
	director := engine.NewDirector(textGen, promptEngine, roster, logger)

	sceneCache := generators.NewSceneCache(cfg.AI.Visual.CacheDir, cfg.AI.Visual.CacheSize)
	if err := sceneCache.Initialize(); err != nil {
		logger.Warn("scene cache unavailable", zap.Error(err))
	}

	var imageGen interfaces.ImageGenerator
	var inspector interfaces.ImageInspector
	var speechGen interfaces.SpeechGenerator
	var videoGen interfaces.VideoGenerator
	if gemini.Configured() {
		imageGen = gemini
		inspector = gemini
		speechGen = gemini
		videoGen = gemini
	}

	visual := engine.NewVisualPipeline(imageGen, inspector, sceneCache, promptEngine, cfg.AI.Visual, logger)

	clipStore := generators.NewClipStore(8)
	speech := engine.NewSpeechPipeline(textGen, speechGen, clipStore, promptEngine, roster, cfg.Speech, logger)

	memStore := memory.NewVectorStore(embedder, logger)

	var graphStore *graph.Store
	if redisStore != nil {
		seedSize := len(engine.SeedGraph(roster).Links)
		graphStore = graph.NewStore(redisStore, cfg.Graph.PersistKey, cfg.Graph.Debounce, seedSize, logger)
	}

	hub := web.NewEventHub(logger)
	go hub.Run()

	orchestrator := engine.NewOrchestrator(
		manager, director, visual, speech, videoGen, memStore,
		graphStore, mysqlStore, redisStore, hub, cfg.AI.Director, logger,
	)

	speech.OnClip(func(clip *generators.Clip) {
		hub.Publish(engine.Event{
			Type:      engine.EventSpeech,
			SessionID: clip.SessionID,
			Payload: map[string]interface{}{
				"turn": clip.Turn,
				"url":  fmt.Sprintf("/api/sessions/%s/speech?turn=%d", clip.SessionID, clip.Turn),
			},
		})
	})

	handlers := web.NewHandlers(cfg, orchestrator, hub, clipStore, sceneCache, redisStore, logger)
	router := web.NewRouter(handlers, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/casaviva/decora-backend/internal/clients/pinecone"
	redisclient "github.com/casaviva/decora-backend/internal/clients/redis"
	"github.com/casaviva/decora-backend/internal/db"
	"github.com/casaviva/decora-backend/internal/handlers"
	"github.com/casaviva/decora-backend/internal/logger"
	"github.com/casaviva/decora-backend/internal/middleware"
	"github.com/casaviva/decora-backend/internal/observability"
	"github.com/casaviva/decora-backend/internal/repos"
	"github.com/casaviva/decora-backend/internal/server"
	"github.com/casaviva/decora-backend/internal/services"
	"github.com/casaviva/decora-backend/internal/sse"
	"github.com/casaviva/decora-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
	synonymPath := utils.GetEnv("CATEGORY_SYNONYM_PATH", "configs/category_synonyms.yaml", log)
	port := utils.GetEnv("PORT", "8080", log)

	// Tracing
	shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "decora-backend",
		Environment: os.Getenv("APP_ENV"),
		Version:     os.Getenv("APP_VERSION"),
	})
	if shutdownOTel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOTel(ctx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	userRepo := repos.NewUserRepo(thePG, log)
	userTokenRepo := repos.NewUserTokenRepo(thePG, log)
	designProjectRepo := repos.NewDesignProjectRepo(thePG, log)
	detectedItemRepo := repos.NewDetectedItemRepo(thePG, log)
	productRepo := repos.NewProductRepo(thePG, log)
	chatMessageRepo := repos.NewChatMessageRepo(thePG, log)

	// SSE
	sseHub := sse.NewSSEHub(log)
	notifier := services.NewDesignNotifier(sseHub)

	// Clients
	bucketService, err := services.NewBucketService(log)
	if err != nil {
		log.Fatal("Could not init BucketService", "error", err)
	}
	embeddingCache, err := redisclient.NewEmbeddingCache(log)
	if err != nil {
		log.Warn("Embedding cache unavailable, embeddings will not be cached", "error", err)
		embeddingCache = nil
	}
	embeddingClient, err := services.NewEmbeddingClient(log, embeddingCache)
	if err != nil {
		log.Fatal("Could not init EmbeddingClient", "error", err)
	}
	visionClient, err := services.NewOpenAIVisionClient(log)
	if err != nil {
		log.Fatal("Could not init vision client", "error", err)
	}
	visionFallback, err := services.NewGCVVisionClient(context.Background(), log)
	if err != nil {
		log.Warn("Fallback vision vendor unavailable", "error", err)
		visionFallback = nil
	}
	segmentationClient, err := services.NewSegmentationClient(log)
	if err != nil {
		log.Warn("Segmentation unavailable, embeddings fall back to bbox crops", "error", err)
		segmentationClient = nil
	}
	inpaintClient, err := services.NewInpaintClient(log)
	if err != nil {
		log.Fatal("Could not init InpaintClient", "error", err)
	}

	var vectorStore pinecone.VectorStore
	pineconeClient, err := pinecone.New(log, pinecone.Config{APIKey: os.Getenv("PINECONE_API_KEY")})
	if err != nil {
		log.Warn("Pinecone unavailable, matching runs on text only", "error", err)
	} else {
		vectorStore, err = pinecone.NewVectorStore(log, pineconeClient)
		if err != nil {
			log.Warn("Pinecone vector store init failed, matching runs on text only", "error", err)
			vectorStore = nil
		}
	}

	// Services
	categoryMap, err := services.LoadCategoryMap(synonymPath, log)
	if err != nil {
		log.Fatal("Could not load category synonym map", "error", err)
	}
	imageFetcher := services.NewImageFetcher(log)
	roiExtractor := services.NewROIExtractor(log, segmentationClient, embeddingClient, imageFetcher)
	catalogService := services.NewCatalogService(log, productRepo)
	matcherService := services.NewMatcherService(log, catalogService, vectorStore, categoryMap, services.MatchConfigFromEnv(log))
	compositorService := services.NewCompositor(log, imageFetcher, bucketService, inpaintClient)
	chatService := services.NewChatService(log, chatMessageRepo, notifier)
	ingestService := services.NewCatalogIngestService(log, productRepo, embeddingClient, imageFetcher, vectorStore)
	authService := services.NewAuthService(thePG, log, userRepo, userTokenRepo, jwtSecretKey,
		time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
	userService := services.NewUserService(log, userRepo)
	designService := services.NewDesignService(log, services.DesignServiceDeps{
		Projects:       designProjectRepo,
		Items:          detectedItemRepo,
		Products:       productRepo,
		Vision:         visionClient,
		VisionFallback: visionFallback,
		ROI:            roiExtractor,
		Matcher:        matcherService,
		Compositor:     compositorService,
		Fetcher:        imageFetcher,
		Bucket:         bucketService,
		Chat:           chatService,
		Notifier:       notifier,
	})

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	designHandler := handlers.NewDesignHandler(designService, chatService)
	productHandler := handlers.NewProductHandler(productRepo, ingestService)
	sseHandler := handlers.NewSSEHandler(sseHub)
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	router := server.NewRouter(server.RouterConfig{
		AuthHandler:    authHandler,
		AuthMiddleware: authMiddleware,
		UserHandler:    userHandler,
		DesignHandler:  designHandler,
		ProductHandler: productHandler,
		SSEHandler:     sseHandler,
	})

	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}

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

	"dealer-service/config"
	"dealer-service/internal/allocation"
	"dealer-service/internal/api"
	"dealer-service/internal/backend"
	"dealer-service/internal/broker"
	"dealer-service/internal/redisclient"
	"dealer-service/internal/service"
	"dealer-service/internal/store"
	"dealer-service/internal/util"
	"dealer-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting dealer service")

	tp, err := util.InitTracer("dealer-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Fatal("Failed to migrate journal schema", zap.Error(err))
	}
	migrateCancel()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))

	eventPublisher := broker.NewEventPublisher(producer)

	// Backend calls are bounded by the request context only.
	httpClient := &http.Client{}
	orderBackend := backend.NewOrderService(backend.Config{BaseURL: cfg.Backend.OrderURL, Token: cfg.Backend.Token}, httpClient)
	userBackend := backend.NewUserService(backend.Config{BaseURL: cfg.Backend.UserURL, Token: cfg.Backend.Token}, httpClient)
	allocationBackend := backend.NewAllocationService(backend.Config{BaseURL: cfg.Backend.AllocationURL, Token: cfg.Backend.Token}, httpClient)
	agencyBackend := backend.NewAgencyService(backend.Config{BaseURL: cfg.Backend.AgencyURL, Token: cfg.Backend.Token}, httpClient)

	matcher := allocation.NewMatcher(allocationBackend, allocationBackend, agencyBackend, redisClient, cfg.Business.AllocationTTL)

	opts := service.Options{
		CacheTTL: cfg.Business.CacheTTL,
		LockTTL:  cfg.Business.LockTTL,
		Location: cfg.Business.PricingLocation,
	}
	services := api.Services{
		Quotations:   service.NewQuotationService(orderBackend, userBackend, redisClient, eventPublisher, opts),
		AgencyOrders: service.NewAgencyOrderService(agencyBackend, allocationBackend, matcher, redisClient, eventPublisher, opts),
		Orders:       service.NewOrderService(orderBackend, redisClient, eventPublisher, opts),
		Promotions:   service.NewPromotionService(orderBackend, redisClient, eventPublisher, opts),
		Inventory:    service.NewInventoryService(allocationBackend, redisClient, eventPublisher, opts),
		Journal:      service.NewJournalService(db, redisClient),
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	journalConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
	journalWorker := worker.NewJournalWorker(journalConsumer, services.Journal)
	go func() {
		if err := journalWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Journal worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	handler := api.NewHandler(services, map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := journalWorker.Stop(); err != nil {
		logger.Warn("Failed to stop journal worker", zap.Error(err))
	}

	logger.Info("Server exited")
}

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

	"prolist/config"
	"prolist/internal/api"
	"prolist/internal/broker"
	"prolist/internal/redisclient"
	"prolist/internal/service"
	"prolist/internal/store"
	"prolist/internal/util"
	"prolist/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting prolist service")

	tp, err := util.InitTracer("prolist", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	var (
		ledger      service.Ledger
		notifStore  service.NotificationStore
		pusher      service.LivePusher
		publisher   service.EventPublisher
		sweepLocker worker.SweepLocker
		dispatcher  *service.Dispatcher
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var notifWorker *worker.NotificationWorker

	if cfg.Server.MemoryStore {
		// Demo mode: everything in-process, events dispatched synchronously.
		log.Println("Running with in-memory store")
		mem := store.NewMemory()
		ledger = mem
		notifStore = mem
		dispatcher = service.NewDispatcher(notifStore, nil, nil)
		publisher = service.NewDirectPublisher(dispatcher)
	} else {
		if err := store.RunMigrations(cfg.Database.MigrationsURL, cfg.Database.URL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Database migrated")

		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		log.Println("Database connected")

		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Println("Redis connected")

		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		log.Println("Kafka producer initialized")

		ledger = db
		notifStore = db
		pusher = redisClient
		publisher = producer
		sweepLocker = redisClient
		dispatcher = service.NewDispatcher(notifStore, pusher, nil)

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
		notifWorker = worker.NewNotificationWorker(consumer, dispatcher)
		go func() {
			if err := notifWorker.Start(workerCtx); err != nil {
				log.Printf("Notification worker error: %v", err)
			}
		}()
	}

	autoRelease := time.Duration(cfg.Business.AutoReleaseHours) * time.Hour
	catalogService := service.NewCatalogService(ledger, nil)
	orderService := service.NewOrderService(ledger, publisher, autoRelease, nil)
	auctionService := service.NewAuctionService(ledger, publisher, nil)
	vendorService := service.NewVendorService(ledger, publisher, nil)

	sweepInterval := time.Duration(cfg.Business.SweepIntervalSeconds) * time.Second
	sweeper := worker.NewSweeper(orderService, auctionService, sweepLocker, sweepInterval)
	go func() {
		if err := sweeper.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Sweeper error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(catalogService, orderService, auctionService, vendorService, dispatcher)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if notifWorker != nil {
		notifWorker.Stop()
	}
	<-sweeper.Done()

	log.Println("Server exited")
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"github.com/streadway/amqp"

	"arokya/internal/catalog"
	"arokya/internal/config"
	"arokya/internal/database"
	"arokya/internal/payment"
	"arokya/internal/repositories"
	"arokya/internal/server"
	"arokya/internal/services"
	"arokya/internal/telemetry"
	"arokya/pkg/rabbitmq"
)

func main() {
	// --- Configuration ---
	// .env first, then environment variables on top of viper defaults
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		log.Fatalf("Failed to load environment file: %v", err)
	}
	cfg, err := config.Load(viper.New())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// --- Tracing ---
	shutdownTracing, err := telemetry.Setup(context.Background(), telemetry.Config{
		ServiceName:  cfg.ServiceName,
		Exporter:     cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}

	// --- Database ---
	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	products, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}
	if err := catalog.Seed(repositories.NewGORMProductRepository(db), products); err != nil {
		log.Fatalf("Failed to seed catalog: %v", err)
	}

	// --- Order events (optional) ---
	var publisher services.EventPublisher
	var mqClient *rabbitmq.Client
	if cfg.RabbitMQURL != "" {
		mqClient, err = rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL})
		if err != nil {
			log.Fatalf("Failed to initialize RabbitMQ client: %v", err)
		}
		publisher = mqClient

		messageHandler := func(msg amqp.Delivery) error {
			_, err := services.HandleOrderEvent(msg.Body)
			return err
		}
		if err := mqClient.ConsumeOrderEvents(messageHandler); err != nil {
			log.Printf("Failed to start RabbitMQ consumer: %v", err)
		}
	} else {
		log.Println("RABBITMQ_URL not set, order events are disabled")
	}

	if cfg.RazorpayKeyID == "" || cfg.RazorpaySecret == "" {
		log.Println("Warning: Razorpay credentials are not set, order creation will fail")
	}
	gateway := payment.NewRazorpayClient(payment.RazorpayConfig{
		KeyID:     cfg.RazorpayKeyID,
		KeySecret: cfg.RazorpaySecret,
		BaseURL:   cfg.RazorpayBaseURL,
	})

	// --- Fiber App ---
	app := server.New(server.Options{
		DB:            db,
		Gateway:       gateway,
		Publisher:     publisher,
		JWTSecret:     cfg.JWTSecret,
		JWTTTL:        cfg.JWTTTL,
		Currency:      cfg.Currency,
		CORSOrigins:   cfg.CORSOrigins,
		RecordCreated: cfg.RecordCreated,
		RequestLog:    cfg.RequestLog,
	})

	// --- Start HTTP Server ---
	log.Printf("Starting server on port %s", cfg.AppPort)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(cfg.AppPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}
	if mqClient != nil {
		if err := mqClient.Close(); err != nil {
			log.Printf("Error closing RabbitMQ client: %v", err)
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(ctx); err != nil {
		log.Printf("Error flushing traces: %v", err)
	}

	log.Println("Server gracefully stopped")
}

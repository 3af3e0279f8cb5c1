package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/steelstore-ledger/internal/config"
	"github.com/steelstore-ledger/internal/data/mongo"
	"github.com/steelstore-ledger/internal/data/postgres"
	"github.com/steelstore-ledger/internal/logger"
	"github.com/steelstore-ledger/internal/platform/messaging/consumers"
	"github.com/steelstore-ledger/internal/platform/messaging/producers"
	"github.com/steelstore-ledger/internal/platform/persistence"
	"github.com/steelstore-ledger/internal/reconcile"
	"github.com/steelstore-ledger/internal/worker"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("reconciler")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Ledger Reconciler",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	customerRepo := postgres.NewCustomerRepository(log, postgresDB)
	ledgerRepo := postgres.NewLedgerRepository(log, postgresDB)
	invoiceRepo := postgres.NewInvoiceRepository(log, postgresDB)
	paymentRepo := postgres.NewPaymentRepository(log, postgresDB)
	historyRepo := mongo.NewHistoryRepository(log, mongoDB.Database())

	// Initialize the ledger event consumer
	eventConsumer := consumers.NewLedgerEventConsumer(log, &cfg.Kafka)

	// Initialize Kafka DLQ producer
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// dlqProducer might be nil if DLQTopic is not configured. Handler should be nil-safe.

	// Initialize reconciliation components
	locks := reconcile.NewKeyedMutex()
	reconciler := reconcile.NewReconciler(log, customerRepo, invoiceRepo, paymentRepo, ledgerRepo)
	applier := reconcile.NewApplier(log, postgresDB, ledgerRepo, customerRepo, reconciler, historyRepo, locks)

	// Initialize ledger event handler
	eventHandler := worker.NewLedgerEventHandler(
		log,
		postgresDB,
		ledgerRepo,
		customerRepo,
		locks,
		dlqProducer,
	)

	// Initialize the periodic reconciliation sweeper
	sweeper, err := worker.NewSweeper(log, customerRepo, reconciler, applier, cfg.Sweep)
	if err != nil {
		log.Error("Failed to initialize sweeper", "error", err)
		os.Exit(1)
	}

	// Create error channel for service errors
	errChan := make(chan error, 2)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start the ledger event consumer in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting ledger event consumer",
			"topic", cfg.Kafka.LedgerEventTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := eventConsumer.Run(appCtx, eventHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("ledger event consumer error: %w", err)
		}
	}()

	// Start the sweep loop in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting reconciliation sweeper",
			"interval", cfg.Sweep.Interval.String(),
			"auto_repair", cfg.Sweep.AutoRepair,
		)
		sweeper.Run(appCtx)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Wait for all goroutines to finish
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Release the sweep worker pool
	sweeper.Shutdown()

	// Close DLQ Kafka producer
	if dlqProducer != nil { // dlqProducer can be nil if DLQTopic was not configured
		if err = dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}

	// Close the ledger event consumer
	if err = eventConsumer.Close(); err != nil {
		log.Error("Error closing ledger event consumer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serviceErr != nil {
		log.Error("Ledger Reconciler shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Ledger Reconciler shutdown completed with errors")
	} else {
		log.Info("Ledger Reconciler shutdown completed successfully")
	}
}

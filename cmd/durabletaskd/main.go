// Package main is the entry point for durabletaskd, the durable-task
// engine's HTTP/WebSocket server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/durabletask/internal/common/config"
	"github.com/kandev/durabletask/internal/common/logger"
	"github.com/kandev/durabletask/internal/durable/api"
	"github.com/kandev/durabletask/internal/durable/client"
	"github.com/kandev/durabletask/internal/durable/clock"
	"github.com/kandev/durabletask/internal/durable/dispatcher"
	"github.com/kandev/durabletask/internal/durable/executorproxy"
	"github.com/kandev/durabletask/internal/durable/notify"
	"github.com/kandev/durabletask/internal/durable/queue"
	"github.com/kandev/durabletask/internal/durable/readyqueue"
	"github.com/kandev/durabletask/internal/durable/store"
	"github.com/kandev/durabletask/internal/durable/trafficsignal"
	"github.com/kandev/durabletask/internal/events/bus"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting durabletaskd...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Connect the status-change notifier's event bus
	var eventBus bus.EventBus
	if cfg.Events.NATSURL != "" {
		natsBus, err := bus.NewNATSEventBus(bus.NATSConfig{URL: cfg.Events.NATSURL, ClientID: "durabletaskd"}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsBus.Close()
		eventBus = natsBus
		log.Info("connected to NATS event bus", zap.String("url", cfg.Events.NATSURL))
	} else {
		eventBus = bus.NewMemoryEventBus(log)
		log.Info("using in-memory event bus")
	}
	notifier := notify.New(eventBus, cfg.Events.Namespace, log)

	// 5. Build the engine's core components
	clk := clock.New()
	defer clk.Stop()

	ready := readyqueue.New()
	activities := queue.New()
	workerSignal := trafficsignal.New()

	storeCfg := store.Config{
		ResetPolicy:     store.ResetPolicy(cfg.Store.ResetPolicy),
		DefaultPageSize: cfg.Store.DefaultPageSize,
	}
	st := store.New(ready, activities, clk, notifier, storeCfg, log)

	proxy := executorproxy.New(workerSignal, log)

	dispatcherCfg := dispatcher.Config{
		MaxConcurrentOrchestrationTurns: cfg.Dispatcher.MaxConcurrentOrchestrationTurns,
		MaxConcurrentActivities:         cfg.Dispatcher.MaxConcurrentActivities,
		TurnDeadline:                    cfg.Dispatcher.TurnDeadline(),
		SignalPollInterval:              dispatcher.DefaultConfig().SignalPollInterval,
	}
	disp := dispatcher.New(st, activities, workerSignal, proxy, dispatcherCfg, log)

	c := client.New(st, client.DefaultConfig(), log)

	// 6. Start the dispatcher loops
	disp.Start(ctx)
	log.Info("dispatcher started",
		zap.Int("orchestration_workers", dispatcherCfg.MaxConcurrentOrchestrationTurns),
		zap.Int("activity_workers", dispatcherCfg.MaxConcurrentActivities))

	// 7. Setup HTTP server with gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(api.RequestLogger(log))
	router.Use(api.Recovery(log))
	router.Use(api.ErrorHandler(log))

	v1 := router.Group("/api/v1")
	api.SetupRoutes(v1, c, proxy, log)
	api.SetupWorkerStream(router, proxy, log)

	router.GET("/health", func(gc *gin.Context) {
		gc.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 8. Create and start the HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	// 9. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down durabletaskd...")

	// 10. Graceful shutdown: stop accepting new work, drain in-flight turns
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	disp.Wait()
	log.Info("durabletaskd stopped")
}

package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"

	"github.com/gateline/gateline/config"
	"github.com/gateline/gateline/pkg/api"
	"github.com/gateline/gateline/pkg/api/events"
	"github.com/gateline/gateline/pkg/api/handlers"
	"github.com/gateline/gateline/pkg/inventory"
	"github.com/gateline/gateline/pkg/logger"
	"github.com/gateline/gateline/pkg/mailer"
	"github.com/gateline/gateline/pkg/metrics"
	"github.com/gateline/gateline/pkg/order"
	"github.com/gateline/gateline/pkg/saga"
	"github.com/gateline/gateline/pkg/storage"
	badgerstore "github.com/gateline/gateline/pkg/storage/badger"
	"github.com/gateline/gateline/pkg/storage/memory"
	"github.com/gateline/gateline/pkg/telemetry/tracing"
	"github.com/gateline/gateline/pkg/ticket"
	"github.com/gateline/gateline/pkg/version"
	"github.com/gateline/gateline/pkg/waitlist"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	appName    = flag.String("app-name", "", "Override app name")
	serverPort = flag.Int("port", 0, "Override server port")
	logLevel   = flag.String("log-level", "", "Override log level")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	// Print help
	if *helpFlag {
		printHelp()
		os.Exit(0)
	}

	// Print version
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath, buildOverrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	// Initialize logger with configuration
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	log.Info("Starting Gateline",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Watch the config file for log level changes when one was given.
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, config.NewLoader())
		if err != nil {
			log.Warn("Config watcher disabled", "error", err)
		} else {
			watcher.OnChange(func(next *config.Config) {
				level := logger.ParseLevel(next.Log.Level)
				if next.App.Debug || *debugMode {
					level = logger.DebugLevel
				}
				logger.SetGlobal(logger.New(&logger.Config{
					Level:  level,
					Format: next.Log.Format,
					Output: next.Log.Output,
				}))
				log.Info("Reloaded logging configuration", "level", next.Log.Level)
			})
			go func() {
				if err := watcher.Watch(ctx); err != nil && err != context.Canceled {
					log.Warn("Config watcher stopped", "error", err)
				}
			}()
			defer watcher.Stop()
		}
	}

	// Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Initialize storage backend. Badger is shared between the order store
	// and the saga execution store so both live in one database.
	var (
		store     storage.Store
		execStore saga.ExecutionStore
	)
	switch cfg.Storage.Type {
	case "badger":
		opts := badgerdb.DefaultOptions(cfg.Storage.Badger.Path)
		opts.SyncWrites = cfg.Storage.Badger.SyncWrites
		if cfg.Storage.Badger.ValueLogFileSize > 0 {
			opts.ValueLogFileSize = cfg.Storage.Badger.ValueLogFileSize
		}
		if cfg.Storage.Badger.NumVersionsToKeep > 0 {
			opts.NumVersionsToKeep = cfg.Storage.Badger.NumVersionsToKeep
		}
		db, err := badgerdb.Open(opts)
		if err != nil {
			log.Error("Failed to open Badger database", "error", err, "path", cfg.Storage.Badger.Path)
			os.Exit(1)
		}

		// store.Close() at shutdown closes the shared database.
		store = badgerstore.NewWithDB(db)
		execStore, err = saga.NewBadgerExecutionStore(db)
		if err != nil {
			log.Error("Failed to create saga execution store", "error", err)
			os.Exit(1)
		}
		log.Info("Initialized Badger storage", "path", cfg.Storage.Badger.Path)
	default:
		store = memory.NewMemoryStorage()
		execStore = saga.NewMemoryExecutionStore()
		log.Info("Initialized memory storage")
	}

	// Initialize inventory backend
	var (
		inv         order.Inventory
		invSeeder   handlers.InventorySeeder
		redisClient *redis.Client
	)
	switch cfg.Inventory.Type {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Inventory.Redis.Address,
			Password: cfg.Inventory.Redis.Password,
			DB:       cfg.Inventory.Redis.DB,
		})
		defer redisClient.Close()

		redisInv, err := inventory.NewRedis(redisClient, inventory.RedisConfig{
			KeyPrefix:      cfg.Inventory.Redis.KeyPrefix,
			ReservationTTL: cfg.Inventory.ReservationTTL,
		})
		if err != nil {
			log.Error("Failed to create Redis inventory", "error", err)
			os.Exit(1)
		}
		inv = redisInv
		invSeeder = redisInv
		log.Info("Initialized Redis inventory", "address", cfg.Inventory.Redis.Address)
	default:
		memInv := inventory.NewMemory()
		inv = memInv
		invSeeder = memInv
		log.Info("Initialized memory inventory")
	}

	// Initialize ticket encoder
	signingKey := []byte(cfg.Ticketing.SigningKey)
	if len(signingKey) == 0 {
		signingKey = make([]byte, 32)
		if _, err := rand.Read(signingKey); err != nil {
			log.Error("Failed to generate signing key", "error", err)
			os.Exit(1)
		}
		log.Warn("No ticket signing key configured, generated an ephemeral one; tokens will not verify across restarts")
	}
	encoder, err := ticket.NewEncoder(signingKey, ticket.WithQRSize(cfg.Ticketing.QRSize))
	if err != nil {
		log.Error("Failed to create ticket encoder", "error", err)
		os.Exit(1)
	}

	// Initialize mailer
	var sender mailer.Sender = mailer.NewLogSender(log)
	if !cfg.Mail.Enabled {
		sender = discardSender{}
	}
	mail, err := mailer.New(sender, mailer.WithLogger(log))
	if err != nil {
		log.Error("Failed to create mailer", "error", err)
		os.Exit(1)
	}

	// Initialize waitlist
	wl := waitlist.NewMemory()

	// Initialize metrics manager
	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics.Enabled
	metricsCfg.Port = cfg.Metrics.Port
	metricsCfg.Path = cfg.Metrics.Path
	metricsManager := metrics.NewManager(metricsCfg)

	// Start metrics server if enabled
	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Build the purchase workflow
	workflow, err := order.NewWorkflow(order.Deps{
		Catalog:   store,
		Inventory: inv,
		Orders:    store,
		Tickets:   store,
		Encoder:   encoder,
		Mailer:    mail,
		Waitlist:  wl,
	}, order.Config{
		Timeout:           cfg.Saga.Timeout,
		ReserveRetries:    cfg.Saga.ReserveRetries,
		ReserveRetryDelay: cfg.Saga.ReserveRetryDelay,
	},
		order.WithLogger(log),
		order.WithMetrics(metricsManager),
		order.WithSagaMetrics(metricsManager),
		order.WithExecutionStore(execStore),
	)
	if err != nil {
		log.Error("Failed to create purchase workflow", "error", err)
		os.Exit(1)
	}

	// Fan saga and order events out to websocket clients
	broadcaster := events.NewBroadcaster()
	defer broadcaster.Close()

	wsHandler := handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
	})
	defer wsHandler.Close()

	eventCh := broadcaster.Subscribe(256)
	go func() {
		for evt := range eventCh {
			_ = wsHandler.Broadcast(handlers.EventMessage{
				Type:      evt.Type,
				Timestamp: evt.Timestamp,
				Payload:   evt.Payload,
			})
		}
	}()

	// Readiness checks
	checks := []handlers.ReadyCheck{
		{Name: "storage", Check: func(ctx context.Context) error {
			_, _, err := store.ListEvents(ctx, &storage.EventFilter{Limit: 1})
			return err
		}},
	}
	if redisClient != nil {
		checks = append(checks, handlers.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}

	// Initialize HTTP server with handlers
	apiHandlers := &api.Handlers{
		Orders:    handlers.NewOrdersHandler(workflow, store, broadcaster, log),
		Events:    handlers.NewEventsHandler(store, invSeeder, wl, log),
		Sagas:     handlers.NewSagaHandler(execStore),
		Health:    handlers.NewHealthHandler(cfg.App.Name, version.Version, checks...),
		WebSocket: wsHandler,
	}
	if metricsManager.Enabled() {
		apiHandlers.Metrics = metricsManager
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	// Start HTTP server in a separate goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	log.Info("Gateline is running",
		"http_port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
		"storage", cfg.Storage.Type,
		"inventory", cfg.Inventory.Type,
	)
	log.Info("Press Ctrl+C to stop")

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		log.Error("HTTP server error", "error", err)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	log.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("Error shutting down tracing", "error", err)
	}

	if err := store.Close(); err != nil {
		log.Error("Error closing storage", "error", err)
	}

	log.Info("Gateline stopped gracefully")
}

// discardSender drops confirmation emails when mail delivery is disabled.
type discardSender struct{}

func (discardSender) Send(context.Context, mailer.Message) error { return nil }

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *appName != "" {
		overrides["app.name"] = *appName
	}
	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

func printVersion() {
	fmt.Printf("Gateline - Ticket Order Orchestrator\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("Gateline - Saga-based ticket order orchestration service\n\n")
	fmt.Printf("Usage: gateline [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  gateline                                   # Run with default config\n")
	fmt.Printf("  gateline -config config.yaml               # Use specific config file\n")
	fmt.Printf("  gateline -port 9090 -log-level debug       # Override specific options\n")
	fmt.Printf("  gateline -version                          # Print version info\n")
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"keysaccounting-api/internal/cache"
	"keysaccounting-api/internal/config"
	"keysaccounting-api/internal/handler"
	"keysaccounting-api/internal/ledger"
	"keysaccounting-api/internal/middleware"
	"keysaccounting-api/internal/notify"
	"keysaccounting-api/internal/pending"
	"keysaccounting-api/internal/repository"
	"keysaccounting-api/internal/resolve"
	"keysaccounting-api/internal/router"
	"keysaccounting-api/internal/service"
	"keysaccounting-api/internal/sheet"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting keys accounting API...")

	// Load configuration
	cfg := config.MustLoad()
	if cfg.App.Debug {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}
	log.Printf("Environment: %s, backend: %s", cfg.App.Environment, cfg.Backend.Type)

	loc, err := cfg.App.Location()
	if err != nil {
		log.Fatalf("Invalid time zone: %v", err)
	}

	// Initialize the grid holding the tables
	grid, err := sheet.Open(cfg.Backend.Type, cfg.Backend.Target())
	if err != nil {
		log.Fatalf("Failed to initialize %s backend: %v", cfg.Backend.Type, err)
	}
	defer grid.Close()

	// Initialize Redis (optional)
	var redisClient *redis.Client
	if cfg.Cache.RedisEnabled() {
		redisClient, err = cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.Printf("Warning: Redis connection failed, running without broadcast: %v", err)
			redisClient = nil
		} else {
			log.Println("Redis client initialized")
			defer redisClient.Close()
		}
	}

	// Initialize cache
	memCache := cache.NewMemoryCache()
	defer memCache.Close()

	var tableCache cache.Cache = memCache
	var broadcaster *cache.Broadcaster
	if redisClient != nil {
		broadcaster = cache.NewBroadcaster(memCache, redisClient, cfg.Cache.InvalidationChannel)
		if err := broadcaster.Start(context.Background()); err != nil {
			log.Printf("Warning: cache invalidation broadcast disabled: %v", err)
			broadcaster = nil
		} else {
			defer broadcaster.Close()
			tableCache = broadcaster
		}
	}

	// Initialize store
	store := repository.NewStore(grid, tableCache, repository.TTLConfig{
		Keys:      cfg.Cache.KeysTTL,
		Employees: cfg.Cache.EmployeesTTL,
		Ledger:    cfg.Cache.LedgerTTL,
	}).WithLocation(loc)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	if err := store.Setup(ctx); err != nil {
		cancel()
		log.Fatalf("Failed to set up tables: %v", err)
	}
	cancel()

	// Initialize notifiers
	notifiers := notify.MultiNotifier{notify.LogNotifier{}}
	if redisClient != nil {
		notifiers = append(notifiers, notify.NewRedisNotifier(redisClient, cfg.Notify.Channel))
	}

	// Initialize services
	clock := clockwork.NewRealClock()
	keyLedger := ledger.New(store, clock)
	registry := pending.NewRegistry(clock)
	defer registry.Close()

	resolver := resolve.NewFuzzy()
	directory := service.NewDirectory(store, keyLedger, resolver)
	lending := service.NewLendingService(service.LendingDeps{
		Keys:       store,
		Ledger:     keyLedger,
		Registry:   registry,
		Directory:  directory,
		Resolver:   resolver,
		Notifier:   notifiers,
		RequestTTL: cfg.Lending.PendingRequestTTL,
	})

	reminders := service.NewReminderScheduler(lending, directory, notifiers, service.ReminderConfig{
		Threshold: cfg.Lending.OverdueThreshold,
		Interval:  cfg.Lending.ReminderInterval,
	}, clock)
	reminders.Start()

	// Initialize handlers
	checks := map[string]handler.Pinger{"store": store}
	if redisClient != nil {
		checks["redis"] = redisPinger{redisClient}
	}
	healthHandler := handler.New(cfg.App.Name, cfg.App.Version, checks)
	lendingHandler := handler.NewLendingHandler(lending, cfg.Lending.OverdueThreshold)
	employeeHandler := handler.NewEmployeeHandler(directory)
	adminHandler := handler.NewAdminHandler(lending, store, cfg.Backend.Type, broadcaster != nil)

	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		APIKeys: cfg.App.APIKeys,
	})

	// Create router
	r := router.New(router.Config{
		Handler:         healthHandler,
		LendingHandler:  lendingHandler,
		EmployeeHandler: employeeHandler,
		AdminHandler:    adminHandler,
		Permissions:     directory,
		AuthMiddleware:  authMiddleware,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop reminders before the store goes away
	reminders.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
	fmt.Println("Goodbye!")
}

// redisPinger adapts a Redis client to the readiness check.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

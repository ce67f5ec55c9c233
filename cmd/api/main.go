package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/skola-app/unit-enrollment-service/internal/adapters/cache"
	"github.com/skola-app/unit-enrollment-service/internal/adapters/handler"
	"github.com/skola-app/unit-enrollment-service/internal/adapters/middleware"
	"github.com/skola-app/unit-enrollment-service/internal/adapters/repository"
	"github.com/skola-app/unit-enrollment-service/internal/config"
	"github.com/skola-app/unit-enrollment-service/internal/core/domain"
	"github.com/skola-app/unit-enrollment-service/internal/core/services"
	"github.com/skola-app/unit-enrollment-service/internal/observability"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, cleanup := observability.NewLogger(cfg.LogLevel, cfg.LogJSON)
	defer cleanup()

	ctx := context.Background()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	log.Info("connected to redis", zap.String("addr", cfg.RedisAddress))

	unitRepo := repository.NewUnitRepository(db)
	discoveryCache := cache.NewDiscoveryCache(
		redisClient,
		config.NewCircuitBreaker("Redis-Discovery", log),
		log,
	)

	enrollmentService := services.NewEnrollmentService(unitRepo, discoveryCache)
	queryService := services.NewUnitQueryService(unitRepo, discoveryCache)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTPublicKey, log)
	unitHandler := handler.NewUnitHandler(enrollmentService, queryService, log)
	healthHandler := handler.NewHealthHandler(db, redisClient, log)

	anyRole := []string{string(domain.RoleStudent), string(domain.RoleLecturer)}
	studentOnly := []string{string(domain.RoleStudent)}

	mux := http.NewServeMux()

	// Health endpoints (OpenShift compatible)
	mux.HandleFunc("/health", healthHandler.Health)
	mux.HandleFunc("/health/ready", healthHandler.Ready)
	mux.HandleFunc("/health/live", healthHandler.Live)
	mux.Handle("/metrics", promhttp.Handler())

	// API endpoints
	mux.Handle("/units", authMiddleware.RequireRole(anyRole, unitHandler.Create))
	mux.Handle("/units/join", authMiddleware.RequireRole(anyRole, unitHandler.Join))
	mux.Handle("/units/leave", authMiddleware.RequireRole(studentOnly, unitHandler.Leave))
	mux.Handle("/units/mine", authMiddleware.RequireRole(anyRole, unitHandler.Mine))
	mux.Handle("/units/available", authMiddleware.RequireRole(anyRole, unitHandler.Available))

	root := middleware.CORSMiddleware(cfg.AllowedOrigins)(middleware.MetricsMiddleware(mux))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("could not start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	log.Info("server stopped")
}

// ==============================================================================
// COMPLIANCE SERVICE MAIN - cmd/server/main.go
// ==============================================================================
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"privaudit/internal/aml"
	"privaudit/internal/commitment"
	"privaudit/internal/compliance"
	"privaudit/internal/disclosure"
	"privaudit/internal/handler"
	"privaudit/internal/middleware"
	"privaudit/internal/multisig"
	"privaudit/internal/repository/postgres"
	"privaudit/internal/scheduler"
	"privaudit/internal/viewingkey"
	"privaudit/pkg/cache"
	"privaudit/pkg/config"
	"privaudit/pkg/logger"
	"privaudit/pkg/validator"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("compliance-service")

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}
	rootSecret, err := cfg.RootSecret()
	if err != nil {
		log.Fatal("Invalid root secret", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting Compliance Service", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	// Database connection
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		log.Fatal("Database ping failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	log.Info("Database connected", nil)

	// Redis connection
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}
	log.Info("Redis connected", nil)

	// Initialize repositories
	keyRepo := postgres.NewViewingKeyRepository(db)
	rotationRepo := postgres.NewRotationRepository(db)
	approvalRepo := postgres.NewApprovalRepository(db)
	commitmentRepo := postgres.NewCommitmentRepository(db)
	disclosureRepo := postgres.NewDisclosureRepository(db)
	txRepo := postgres.NewTransactionRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	// Initialize services
	multisigService, err := multisig.NewService(approvalRepo, cfg.MultiSig.Threshold, cfg.MultiSig.RequestTTL, log)
	if err != nil {
		log.Fatal("Failed to initialize multisig service", map[string]interface{}{
			"error": err.Error(),
		})
	}

	keyService, err := viewingkey.NewService(keyRepo, rotationRepo, multisigService, rootSecret, log)
	if err != nil {
		log.Fatal("Failed to initialize viewing key service", map[string]interface{}{
			"error": err.Error(),
		})
	}

	commitmentService, err := commitment.NewService(commitmentRepo, rootSecret, log)
	if err != nil {
		log.Fatal("Failed to initialize commitment service", map[string]interface{}{
			"error": err.Error(),
		})
	}

	disclosureService := disclosure.NewService(disclosureRepo, keyService, log)

	amlThreshold, err := decimal.NewFromString(cfg.AML.CheckThreshold)
	if err != nil {
		log.Fatal("Invalid AML check threshold", map[string]interface{}{
			"error": err.Error(),
		})
	}
	amlChecker := aml.NewHeuristicChecker(amlThreshold, cfg.AML.Watchlist, log)

	complianceService := compliance.NewService(keyService, disclosureService, txRepo, amlChecker, log)

	// Background sweeps: due key rotations and stale approval requests.
	sweeper := scheduler.New(keyService, multisigService, cfg.Rotation.SweepInterval, log)
	sweeper.Start()

	// Initialize handlers
	val := validator.New()
	keyHandler := handler.NewViewingKeyHandler(keyService, val, log)
	commitmentHandler := handler.NewCommitmentHandler(commitmentService, log)
	disclosureHandler := handler.NewDisclosureHandler(complianceService, disclosureService, keyService, val, log)
	reportCache := cache.NewRedisCache(redisClient)
	reportHandler := handler.NewReportHandler(complianceService, reportCache, val, log)
	approvalHandler := handler.NewApprovalHandler(multisigService, val, log)
	systemHandler := handler.NewSystemHandler(db, redisClient, auditRepo, log)

	// Setup router
	r := mux.NewRouter()

	// Middleware
	r.Use(middleware.CORS)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)
	r.Use(middleware.BodyLimit(1 << 20)) // 1MB global cap
	r.Use(middleware.NewRateLimiter(redisClient, 150, time.Minute).Limit)

	authMW := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	idemMW := middleware.NewIdempotencyMiddleware(redisClient, 24*time.Hour)
	auditMW := middleware.NewAuditMiddleware(auditRepo, log)

	// Health check routes (no auth)
	r.HandleFunc("/health", systemHandler.Health).Methods("GET")
	r.HandleFunc("/ready", systemHandler.Ready).Methods("GET")

	// Protected routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW.Authenticate)
	api.Use(auditMW.Audit)
	api.Use(middleware.NewRateLimiter(redisClient, 60, time.Minute).Limit)

	keys := api.PathPrefix("/viewing-keys").Subrouter()
	keys.Handle("/generate", idemMW.Require(http.HandlerFunc(keyHandler.GenerateMaster))).Methods("POST")
	keys.Handle("/derive", idemMW.Require(http.HandlerFunc(keyHandler.Derive))).Methods("POST")
	keys.HandleFunc("/verify", keyHandler.VerifyHierarchy).Methods("POST")
	keys.HandleFunc("/{id}/rotate", keyHandler.Rotate).Methods("POST")
	keys.HandleFunc("/{id}/revoke", keyHandler.Revoke).Methods("POST")
	keys.HandleFunc("/{id}", keyHandler.Get).Methods("GET")

	disclosures := api.PathPrefix("/disclosures").Subrouter()
	disclosures.Handle("", idemMW.Require(http.HandlerFunc(disclosureHandler.Create))).Methods("POST")
	disclosures.HandleFunc("/{id}/decrypt", disclosureHandler.Decrypt).Methods("POST")
	disclosures.HandleFunc("/auditor/{auditorId}", disclosureHandler.ListByAuditor).Methods("GET")
	disclosures.HandleFunc("/{id}", disclosureHandler.Revoke).Methods("DELETE")

	api.HandleFunc("/reports", reportHandler.Generate).Methods("POST")

	masterKey := api.PathPrefix("/master-key").Subrouter()
	masterKey.HandleFunc("/signers", approvalHandler.RegisterSigner).Methods("POST")
	masterKey.Handle("/approvals", idemMW.Require(http.HandlerFunc(approvalHandler.CreateRequest))).Methods("POST")
	masterKey.HandleFunc("/approvals/{id}/signatures", approvalHandler.AddSignature).Methods("POST")
	masterKey.HandleFunc("/approvals/{id}", approvalHandler.GetRequest).Methods("GET")

	commitments := api.PathPrefix("/commitments").Subrouter()
	commitments.Handle("", idemMW.Require(http.HandlerFunc(commitmentHandler.Create))).Methods("POST")
	commitments.Handle("/batch", idemMW.Require(http.HandlerFunc(commitmentHandler.BatchCreate))).Methods("POST")
	commitments.HandleFunc("/verify", commitmentHandler.Verify).Methods("POST")
	commitments.HandleFunc("/add", commitmentHandler.Add).Methods("POST")
	commitments.HandleFunc("/{id}", commitmentHandler.Get).Methods("GET")

	api.HandleFunc("/audit-logs", systemHandler.GetAuditLogs).Methods("GET")

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		log.Info("Compliance service started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down compliance service...", nil)

	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Compliance service forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Compliance service stopped gracefully", nil)
}

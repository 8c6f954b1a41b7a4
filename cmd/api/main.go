package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/vchernov/bank-cards/internal/config"
	"github.com/vchernov/bank-cards/internal/handler"
	"github.com/vchernov/bank-cards/internal/repository"
	"github.com/vchernov/bank-cards/internal/scheduler"
	"github.com/vchernov/bank-cards/internal/service"
	"github.com/vchernov/bank-cards/internal/token"
	"github.com/vchernov/bank-cards/internal/utils"
	"github.com/vchernov/bank-cards/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db)
	jwtManager := token.NewManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	var mailer service.Notifier
	if cfg.MailEnabled() {
		mailer = email.NewSender(cfg, logger)
	}

	authSvc := service.NewAuthService(repo, repo, jwtManager, logger, mailer)
	cardSvc := service.NewCardService(repo, repo, utils.DeriveKey(cfg.CardSecret), logger, mailer)
	adminSvc := service.NewAdminService(repo, repo, cardSvc, logger)
	h := handler.NewHandler(authSvc, cardSvc, adminSvc, logger)

	// Token expiry sweep
	sched := scheduler.New(logger)
	if err := sched.AddTokenSweep(cfg.TokenSweep, authSvc); err != nil {
		logger.Fatalf("Failed to schedule token sweep: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Setup router
	r := handler.NewRouter(h, authSvc, logger)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}

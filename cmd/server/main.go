package main

import (
	"log"
	"net/http"

	"brewbar-be/internal/admin"
	"brewbar-be/internal/config"
	"brewbar-be/internal/db"
	"brewbar-be/internal/logger"
	"brewbar-be/internal/menu"
	"brewbar-be/internal/middleware"
	"brewbar-be/internal/notify"
	"brewbar-be/internal/order"
	"brewbar-be/internal/payment"
	"brewbar-be/internal/payment/webhook"
	"brewbar-be/internal/reconcile"

	"github.com/gorilla/mux"
)

func main() {
	cfg := config.LoadConfig()

	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database, err := db.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}
	defer database.Close()

	var gateway payment.Gateway
	if cfg.PaymentProvider == "yoco" {
		gateway = payment.NewYocoGateway(cfg.YocoSecretKey, cfg.PublicBaseURL)
	} else {
		gateway = payment.NewPayFastGateway(cfg.PayFastMerchantID, cfg.PayFastMerchantKey, cfg.PayFastPassphrase, cfg.PublicBaseURL)
	}

	var notifier notify.Notifier = notify.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		notifier = notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	menuRepo := menu.NewRepository(database)
	payRepo := payment.NewRepository(database)
	orderRepo := order.NewRepository(database)
	orderSvc := order.NewService(orderRepo, menuRepo, payRepo, gateway, notifier)

	sweeper := reconcile.NewSweeper(orderRepo, orderSvc, cfg.SweepPolicy, cfg.SweepThresholdMinutes)

	webhookHandler := webhook.NewHandler(
		orderSvc, payRepo,
		cfg.PayFastPassphrase, cfg.PayFastAllowedCIDRs,
		cfg.YocoWebhookSecret,
	)
	orderHandler := order.NewHandler(orderSvc)
	adminHandler := admin.NewHandler(orderSvc, sweeper)

	r := mux.NewRouter()
	r.Use(logger.RequestIDMiddleware, logger.LoggingMiddleware, middleware.RateLimitMiddleware)

	r.HandleFunc("/webhook/payfast", webhookHandler.PayFastHandler).Methods("POST")
	r.HandleFunc("/webhook/yoco", webhookHandler.YocoHandler).Methods("POST")

	orderHandler.Register(r)

	adminRouter := r.PathPrefix("/admin").Subrouter()
	adminRouter.Use(middleware.RequireAdmin)
	adminHandler.Register(adminRouter)

	logger.L().Sugar().Infof("server running at http://localhost:%s/", cfg.AppPort)
	log.Fatal(http.ListenAndServe(":"+cfg.AppPort, r))
}

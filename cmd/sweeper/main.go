package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brewbar-be/internal/config"
	"brewbar-be/internal/db"
	"brewbar-be/internal/logger"
	"brewbar-be/internal/menu"
	"brewbar-be/internal/notify"
	"brewbar-be/internal/order"
	"brewbar-be/internal/payment"
	"brewbar-be/internal/reconcile"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	interval := flag.Duration("interval", 5*time.Minute, "sweep interval")
	flag.Parse()

	cfg := config.LoadConfig()

	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database, err := db.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}
	defer database.Close()

	// Checkout never runs here; the gateway only satisfies the service
	// constructor.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		report, err := sweeper.Run(ctx)
		if err != nil {
			log.Fatalf("sweep failed: %v", err)
		}
		_ = json.NewEncoder(os.Stdout).Encode(report)
		return
	}

	sweeper.RunEvery(ctx, *interval)
}

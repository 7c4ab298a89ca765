package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// SweepPolicy decides what the reconciliation sweeper does with a stale order.
type SweepPolicy string

const (
	// SweepPolicyConservative only reports stale orders for manual action.
	SweepPolicyConservative SweepPolicy = "conservative"
	// SweepPolicyOptimistic force-confirms stale orders past the threshold.
	SweepPolicyOptimistic SweepPolicy = "optimistic"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string

	JWTSecret string

	// PaymentProvider selects the checkout gateway: "payfast" or "yoco".
	// Webhooks for both providers are always mounted.
	PaymentProvider string
	// PublicBaseURL is where providers reach this service back (return,
	// cancel and notify URLs).
	PublicBaseURL string

	PayFastMerchantID  string
	PayFastMerchantKey string
	PayFastPassphrase  string
	// Advisory only: source IPs outside these CIDRs are logged, never blocked.
	PayFastAllowedCIDRs []string

	YocoSecretKey     string
	YocoWebhookSecret string

	SweepPolicy           SweepPolicy
	SweepThresholdMinutes int

	KafkaBrokers []string
	KafkaTopic   string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		AppPort:    os.Getenv("APP_PORT"),
		AppEnv:     os.Getenv("APP_ENV"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		PaymentProvider: strings.ToLower(strings.TrimSpace(os.Getenv("PAYMENT_PROVIDER"))),
		PublicBaseURL:   strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),

		PayFastMerchantID:   os.Getenv("PAYFAST_MERCHANT_ID"),
		PayFastMerchantKey:  os.Getenv("PAYFAST_MERCHANT_KEY"),
		PayFastPassphrase:   os.Getenv("PAYFAST_PASSPHRASE"),
		PayFastAllowedCIDRs: splitList(os.Getenv("PAYFAST_ALLOWED_CIDRS")),

		YocoSecretKey:     os.Getenv("YOCO_SECRET_KEY"),
		YocoWebhookSecret: os.Getenv("YOCO_WEBHOOK_SECRET"),

		SweepPolicy:           parseSweepPolicy(os.Getenv("SWEEP_POLICY")),
		SweepThresholdMinutes: parseIntDefault(os.Getenv("SWEEP_THRESHOLD_MINUTES"), 24*60),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   os.Getenv("KAFKA_TOPIC"),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

// parseSweepPolicy defaults to the conservative report-only policy so that
// auto-confirming on elapsed time is always an explicit operator choice.
func parseSweepPolicy(raw string) SweepPolicy {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(SweepPolicyOptimistic):
		return SweepPolicyOptimistic
	default:
		return SweepPolicyConservative
	}
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

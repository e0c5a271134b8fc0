package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	DatabaseName      string `mapstructure:"DATABASE_NAME"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisLockDB   int    `mapstructure:"REDIS_LOCK_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	// Stripe.
	StripeKey           string `mapstructure:"STRIPE_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	Currency            string `mapstructure:"CURRENCY"`

	// Checkout signing secret for payment-intent metadata.
	InvoiceSigningSecret string `mapstructure:"INVOICE_SIGNING_SECRET"`

	// Booking policy.
	Timezone                string `mapstructure:"TIMEZONE"`
	CartExpiryMinutes       int    `mapstructure:"CART_EXPIRY_MINUTES"`
	CheckoutGraceMinutes    int    `mapstructure:"CHECKOUT_GRACE_MINUTES"`
	MembershipGraceMinutes  int    `mapstructure:"MEMBERSHIP_GRACE_MINUTES"`
	WaitingListPriorityList string `mapstructure:"WAITING_LIST_PRIORITY_LIST"` // comma-separated emails
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_LOCK_DB", 1)
	viper.SetDefault("REDIS_QUEUE_DB", 2)
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE_NAME", "studiobook")
	viper.SetDefault("CURRENCY", "gbp")
	viper.SetDefault("TIMEZONE", "Europe/London")
	viper.SetDefault("CART_EXPIRY_MINUTES", 15)
	viper.SetDefault("CHECKOUT_GRACE_MINUTES", 5)
	viper.SetDefault("MEMBERSHIP_GRACE_MINUTES", 5)
	viper.SetDefault("WAITING_LIST_PRIORITY_LIST", "")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

// WaitingListPriorityEmails returns the operator-configured priority list in
// order, with blanks dropped.
func WaitingListPriorityEmails() []string {
	var out []string
	for _, e := range strings.Split(AppConfig.WaitingListPriorityList, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DSN           string
	MigrationsDir string
	HTTPPort      string
	Username      string
	Password      string

	KafkaBrokers []string
	KafkaGroupID string
	KafkaTopic   string

	RedisAddr     string
	QuoteCacheTTL time.Duration

	FreightBaseURL string
	FreightToken   string

	PaymentBaseURL       string
	PaymentAPIKey        string
	PaymentWebhookSecret string

	ERPBaseURL string
	ERPToken   string

	AuditBatchSize int
	AuditTimeout   time.Duration
}

func LoadConfig() *Config {
	brokersStr := getEnv("KAFKA_BROKERS", "localhost:9092")
	return &Config{
		DSN:           getEnv("APP_DSN", "host=localhost user=postgres password=postgres dbname=pedidos sslmode=disable"),
		MigrationsDir: getEnv("APP_MIGRATIONS", "migrations"),
		HTTPPort:      getEnv("APP_PORT", "9000"),
		Username:      getEnv("APP_USER", "admin"),
		Password:      getEnv("APP_PASS", "secret"),

		KafkaBrokers: strings.Split(brokersStr, ","),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "audit-group"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "order-events"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		QuoteCacheTTL: getDuration("QUOTE_CACHE_TTL", 15*time.Minute),

		FreightBaseURL: getEnv("FREIGHT_BASE_URL", "https://api.frenet.com.br"),
		FreightToken:   getEnv("FREIGHT_TOKEN", ""),

		PaymentBaseURL:       getEnv("PAYMENT_BASE_URL", "https://api.pagamento.local"),
		PaymentAPIKey:        getEnv("PAYMENT_API_KEY", ""),
		PaymentWebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),

		ERPBaseURL: getEnv("ERP_BASE_URL", "https://erp.local/api/v1"),
		ERPToken:   getEnv("ERP_TOKEN", ""),

		AuditBatchSize: getInt("AUDIT_BATCH_SIZE", 10),
		AuditTimeout:   getDuration("AUDIT_TIMEOUT", 2*time.Second),
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%s", c.HTTPPort)
}

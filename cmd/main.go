package main

import (
	"context"
	"log"
	"time"

	"github.com/IBM/sarama"

	"github.com/MichaelCampos91/pedidos-sub000/internal/audit"
	"github.com/MichaelCampos91/pedidos-sub000/internal/cache"
	"github.com/MichaelCampos91/pedidos-sub000/internal/checkout"
	"github.com/MichaelCampos91/pedidos-sub000/internal/config"
	"github.com/MichaelCampos91/pedidos-sub000/internal/db"
	"github.com/MichaelCampos91/pedidos-sub000/internal/gateway"
	"github.com/MichaelCampos91/pedidos-sub000/internal/kafka"
	"github.com/MichaelCampos91/pedidos-sub000/internal/metrics"
	taskprocessor "github.com/MichaelCampos91/pedidos-sub000/internal/processor"
	"github.com/MichaelCampos91/pedidos-sub000/internal/quote"
	"github.com/MichaelCampos91/pedidos-sub000/internal/repository"
	"github.com/MichaelCampos91/pedidos-sub000/internal/server"
)

func main() {
	cfg := config.LoadConfig()

	database, err := db.NewDB(cfg.DSN, cfg.MigrationsDir)
	if err != nil {
		log.Fatalf("Error in connection to db: %v", err)
	}
	defer database.Close()

	orderRepo := repository.NewOrderRepository(database)
	ruleRepo := repository.NewRuleRepository(database)
	settingsRepo := repository.NewSettingsRepository(database)
	taskRepo := repository.NewPostgresTaskRepository(database)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbProcessor := audit.NewDBProcessor(database)
	auditPool := audit.NewWorkerPool(audit.PoolConfig{
		BatchSize: cfg.AuditBatchSize,
		Timeout:   cfg.AuditTimeout,
	}, dbProcessor, &audit.StdoutProcessor{})
	auditPool.Start(ctx, 2)
	defer auditPool.Shutdown(cancel)

	quoteCache, err := cache.NewQuoteCache(cfg.RedisAddr, cfg.QuoteCacheTTL)
	if err != nil {
		log.Printf("Quote cache unavailable, quoting without cache: %v", err)
		quoteCache = nil
	} else {
		defer quoteCache.Close()
	}

	freight := gateway.NewFreightClient(cfg.FreightBaseURL, cfg.FreightToken)
	payments := gateway.NewPaymentClient(cfg.PaymentBaseURL, cfg.PaymentAPIKey)
	erp := gateway.NewERPClient(cfg.ERPBaseURL, cfg.ERPToken)

	var optionCache quote.OptionCache
	if quoteCache != nil {
		optionCache = quoteCache
	}
	quoteService := quote.NewService(freight, ruleRepo, settingsRepo, optionCache)
	checkoutService := checkout.NewService(orderRepo, quoteService, payments, taskRepo, auditPool)

	dashboard := metrics.NewCache(orderRepo)
	if err := dashboard.Refresh(ctx); err != nil {
		log.Printf("Initial metrics refresh failed: %v", err)
	}
	go dashboard.StartAutoRefresh(ctx, time.Minute)

	producer, err := kafka.NewSaramaProducer(cfg.KafkaBrokers)
	if err != nil {
		log.Fatalf("Error creating Kafka producer: %v", err)
	}
	defer producer.Close()

	proc := taskprocessor.NewTaskProcessor(taskRepo, producer, erp, orderRepo, cfg.KafkaTopic, 2*time.Second, 20)
	go proc.Start(ctx)

	go func() {
		consumerCfg := sarama.NewConfig()
		if err := kafka.StartSaramaConsumer(ctx, consumerCfg, cfg.KafkaBrokers, cfg.KafkaGroupID, []string{cfg.KafkaTopic}); err != nil {
			log.Printf("Order-event consumer stopped: %v", err)
		}
	}()

	srv := server.NewServer(orderRepo, ruleRepo, settingsRepo, dbProcessor,
		quoteService, checkoutService, dashboard, auditPool, cfg)

	if err := srv.Run(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Application
	applicationPort "github.com/dreschagin/process-detector/internal/application/port"
	"github.com/dreschagin/process-detector/internal/application/usecase"
	"github.com/dreschagin/process-detector/internal/bootstrap"

	// Infrastructure
	redisCache "github.com/dreschagin/process-detector/internal/infrastructure/cache/redis"
	"github.com/dreschagin/process-detector/internal/infrastructure/ingest/csvtable"
	natsInfra "github.com/dreschagin/process-detector/internal/infrastructure/messaging/nats"
	wsInfra "github.com/dreschagin/process-detector/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/process-detector/internal/infrastructure/observability/cloudwatch"
	prommetrics "github.com/dreschagin/process-detector/internal/infrastructure/observability/prometheus"
	dynamodbRepo "github.com/dreschagin/process-detector/internal/infrastructure/persistence/dynamodb"
	s3storage "github.com/dreschagin/process-detector/internal/infrastructure/storage/s3"

	// Interfaces
	httpInterface "github.com/dreschagin/process-detector/internal/interfaces/http"
	"github.com/dreschagin/process-detector/internal/interfaces/http/handler"
	"github.com/dreschagin/process-detector/internal/interfaces/http/middleware"

	// Shared
	"github.com/dreschagin/process-detector/pkg/config"
	"github.com/dreschagin/process-detector/pkg/logger"
)

func main() {
	// 1. Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализируем logger
	log := logger.New(cfg.LogLevel)
	log.Info("Starting Process Detector API")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Хранилища истории и политик
	stores, err := bootstrap.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to open history store", err, "backend", cfg.History.Backend)
		os.Exit(1)
	}
	defer stores.Close()

	analyzer, err := bootstrap.NewAnalyzer(cfg.Analysis)
	if err != nil {
		log.Error("Invalid analysis configuration", err)
		os.Exit(1)
	}

	// 4. Dependency Injection - Infrastructure Layer

	// Redis cache
	var cache applicationPort.Cache
	var redisImpl *redisCache.RedisCache
	if cfg.Redis.Enabled {
		redisImpl, err = redisCache.NewRedisCache(redisCache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			log.Warn("Failed to connect to Redis, continuing without cache", "error", err.Error())
			redisImpl = nil
		} else {
			cache = redisImpl
			defer redisImpl.Close()
			log.Info("Redis cache initialized", "addr", cfg.Redis.Addr)
		}
	} else {
		log.Warn("Redis cache is disabled")
	}

	// WebSocket Hub
	hub := wsInfra.NewHub(log)

	// Prometheus
	var metrics *prommetrics.Metrics
	var registry *prometheus.Registry
	if cfg.Prometheus.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = prommetrics.New(registry)
	}

	// CloudWatch Metrics Publisher
	var metricsPublisher applicationPort.MetricsPublisher
	if cfg.CloudWatch.MetricsEnabled {
		publisherImpl, initErr := cloudwatch.NewMetricsPublisher(ctx,
			cloudwatch.MetricsPublisherConfig{
				Namespace:       cfg.CloudWatch.Namespace,
				Region:          cfg.CloudWatch.Region,
				Endpoint:        cfg.CloudWatch.Endpoint,
				AccessKeyID:     cfg.CloudWatch.AccessKeyID,
				SecretAccessKey: cfg.CloudWatch.SecretAccessKey,
				FlushInterval:   cfg.CloudWatch.FlushInterval,
			}, log)
		if initErr != nil {
			log.Error("Failed to initialize CloudWatch metrics publisher", initErr)
			os.Exit(1)
		}
		metricsPublisher = publisherImpl
		log.Info("CloudWatch metrics publisher initialized")
	} else {
		log.Warn("CloudWatch metrics publishing is disabled")
	}

	// CloudWatch Logs Publisher
	var logsPublisher *cloudwatch.LogsPublisher
	if cfg.CloudWatch.LogsEnabled {
		publisherImpl, initErr := cloudwatch.NewLogsPublisher(ctx,
			cloudwatch.LogsPublisherConfig{
				LogGroupName:    cfg.CloudWatch.LogGroup,
				LogStreamName:   cfg.CloudWatch.LogStream,
				Region:          cfg.CloudWatch.Region,
				Endpoint:        cfg.CloudWatch.Endpoint,
				AccessKeyID:     cfg.CloudWatch.AccessKeyID,
				SecretAccessKey: cfg.CloudWatch.SecretAccessKey,
				FlushInterval:   cfg.CloudWatch.FlushInterval,
				AutoCreate:      true,
			})
		if initErr != nil {
			log.Error("Failed to initialize CloudWatch logs publisher", initErr)
			os.Exit(1)
		}
		logsPublisher = publisherImpl
		log.SetLogPublisher(logsPublisher)
		log.Info("CloudWatch logs publisher initialized")
	} else {
		log.Warn("CloudWatch logs publishing is disabled")
	}

	// NATS Event Publisher
	var eventPublisher applicationPort.EventPublisher
	if cfg.NATS.Enabled {
		publisherImpl, initErr := natsInfra.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.StreamName, log)
		if initErr != nil {
			log.Warn("Failed to connect to NATS, continuing without event publishing", "error", initErr.Error())
		} else {
			eventPublisher = publisherImpl
			defer eventPublisher.Close()
			log.Info("NATS event publisher initialized", "url", cfg.NATS.URL)
		}
	} else {
		log.Warn("NATS event publishing is disabled")
	}

	// S3 report archive
	var reportStorage applicationPort.ReportStorage
	if cfg.S3.Enabled {
		storageImpl, initErr := s3storage.NewReportStorage(ctx, s3storage.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			URLMode:         s3storage.URLMode(cfg.S3.URLMode),
			PresignedTTL:    cfg.S3.PresignedTTL,
		})
		if initErr != nil {
			log.Error("Failed to initialize report storage", initErr)
			os.Exit(1)
		}
		reportStorage = storageImpl
		log.Info("Report archive initialized", "bucket", cfg.S3.Bucket)
	} else {
		log.Warn("S3 report archive is disabled")
	}

	// DynamoDB report index
	var reportIndex applicationPort.ReportIndexRepository
	if cfg.Dynamo.Enabled {
		repoImpl, initErr := dynamodbRepo.NewReportIndexRepository(ctx, dynamodbRepo.Config{
			TableName:       cfg.Dynamo.TableName,
			Region:          cfg.Dynamo.Region,
			Endpoint:        cfg.Dynamo.Endpoint,
			AccessKeyID:     cfg.Dynamo.AccessKeyID,
			SecretAccessKey: cfg.Dynamo.SecretAccessKey,
			StrongReads:     cfg.Dynamo.StrongReads,
			Retention:       cfg.Dynamo.Retention,
		})
		if initErr != nil {
			log.Error("Failed to initialize report index", initErr)
			os.Exit(1)
		}
		reportIndex = repoImpl
		log.Info("Report index initialized", "provider", "dynamodb", "table", cfg.Dynamo.TableName)
	} else {
		log.Warn("DynamoDB report index is disabled, using S3 listing mode")
	}

	// 5. Dependency Injection - Application Layer (Use Cases)

	policyResolver := usecase.NewPolicyResolver(stores.Policies, cache, log)

	var recorder applicationPort.RunRecorder
	if metrics != nil {
		recorder = metrics
	}

	analyzeDeps := usecase.AnalyzeEventLogDeps{
		Reader:   csvtable.NewReader(),
		Analyzer: analyzer,
		History:  stores.History,
		Policies: policyResolver,
		Cache:    cache,
		Storage:  reportStorage,
		Index:    reportIndex,
		Events:   eventPublisher,
		Metrics:  metricsPublisher,
		Notifier: hub,
		Recorder: recorder,
	}
	analyzeUC := usecase.NewAnalyzeEventLogUseCase(analyzeDeps, usecase.AnalyzeEventLogConfig{
		KeyPrefix: cfg.S3.KeyPrefix,
	}, log)

	getHistoryUC := usecase.NewGetHistoryUseCase(stores.History, cache, log)
	getTrendUC := usecase.NewGetTrendUseCase(stores.History, nil, log)
	tenantPolicyUC := usecase.NewTenantPolicyUseCase(stores.Policies, policyResolver, log)

	var listReportsUC *usecase.ListReportsUseCase
	if reportStorage != nil || reportIndex != nil {
		listReportsUC = usecase.NewListReportsUseCase(reportStorage, reportIndex, usecase.ListReportsConfig{
			KeyPrefix:           cfg.S3.KeyPrefix,
			FallbackToS3OnError: reportStorage != nil,
		}, log)
	}

	// 6. Dependency Injection - Interfaces Layer (HTTP Handlers)

	authConfig := middleware.AuthConfig{
		Enabled:     cfg.Security.AuthEnabled,
		BearerToken: cfg.Security.AuthToken,
	}
	if authConfig.Enabled && authConfig.BearerToken == "" {
		log.Error("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true", nil)
		os.Exit(1)
	}
	if metrics != nil {
		authConfig.OnFailure = metrics.AuthFailures.Inc
	}

	router := httpInterface.NewRouter(
		handler.NewAnalysisHandler(analyzeUC, cfg.Upload.MaxBytes, cfg.Analysis.DefaultRate, log),
		handler.NewTenantHandler(getHistoryUC, getTrendUC, listReportsUC, tenantPolicyUC, log),
		handler.NewReportViewHandler(getHistoryUC, getTrendUC, log),
		handler.NewWebSocketHandler(hub, cfg.Security.AllowedOrigins, authConfig, log),
		cfg.Security,
		cfg.Upload,
		log,
	)
	defer router.Close()

	if metrics != nil {
		router.WithMetrics(metrics, cfg.Prometheus.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	if stores.Backend == bootstrap.BackendPostgres {
		router.WithReadinessCheck("postgres", stores.Ping)
	}
	if redisImpl != nil {
		router.WithReadinessCheck("redis", redisImpl.Ping)
	}

	// 7. Запускаем фоновые процессы

	go hub.Run(ctx)
	log.Info("WebSocket hub started")

	// 8. Настраиваем HTTP сервер

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port, "history_backend", stores.Backend)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}()

	// 9. Ожидаем сигнал для graceful shutdown

	<-sigChan
	log.Info("Shutdown signal received, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}

	// Останавливаем hub после HTTP, чтобы закрыть оставшиеся WebSocket соединения
	cancel()

	if metricsPublisher != nil {
		log.Info("Flushing CloudWatch metrics buffer...")
		if err := metricsPublisher.Flush(shutdownCtx); err != nil {
			log.Error("Failed to flush CloudWatch metrics", err)
		}
	}

	log.Info("Server stopped gracefully")

	// Логи отправляются последними, чтобы захватить сообщения о завершении
	if logsPublisher != nil {
		log.SetLogPublisher(nil)
		if err := logsPublisher.Close(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to flush CloudWatch logs: %v\n", err)
		}
	}
}

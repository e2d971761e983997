package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bharathbbg/awb-reconciler/internal/config"
	"github.com/bharathbbg/awb-reconciler/internal/courier"
	"github.com/bharathbbg/awb-reconciler/internal/events"
	"github.com/bharathbbg/awb-reconciler/internal/handler"
	"github.com/bharathbbg/awb-reconciler/internal/health"
	"github.com/bharathbbg/awb-reconciler/internal/logger"
	"github.com/bharathbbg/awb-reconciler/internal/metrics"
	"github.com/bharathbbg/awb-reconciler/internal/queue"
	"github.com/bharathbbg/awb-reconciler/internal/repository"
	"github.com/bharathbbg/awb-reconciler/internal/service"
	"github.com/bharathbbg/awb-reconciler/internal/transport"
	"github.com/bharathbbg/awb-reconciler/internal/worker"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

const shutdownTimeout = 10 * time.Second

type publisher interface {
	service.EventPublisher
	Close() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	ctx = logger.WithLogger(ctx, log)

	//region storage
	pg, err := repository.NewPostgresRepository(cfg.Database)
	if err != nil {
		log.Fatal(ctx, "failed to connect to postgres", zap.Error(err))
	}
	log.Info(ctx, "connected to postgres")

	cache, err := repository.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Fatal(ctx, "failed to connect to redis", zap.Error(err))
	}
	log.Info(ctx, "connected to redis")

	var records service.RecordStore = pg
	if cfg.MetadataStore == "dynamodb" {
		ddb, err := repository.NewDynamoClient(ctx, cfg.Dynamo)
		if err != nil {
			log.Fatal(ctx, "failed to configure dynamodb", zap.Error(err))
		}
		records = repository.NewDynamoRepository(ddb, cfg.Dynamo.Table)
	}
	log.Info(ctx, "metadata store selected", zap.String("store", cfg.MetadataStore))
	//endregion

	//region courier
	httpClient := transport.NewClient(transport.Config{
		Timeout:    cfg.Courier.Timeout,
		MaxRetries: cfg.Courier.MaxRetries,
		UserAgent:  cfg.Courier.UserAgent,
	}, metrics.Transport{})
	tokens := courier.NewTokenManager(httpClient, cache, cfg.Courier.APIURL, cfg.Courier.EcommerceURL, courier.Credentials{
		Domain:   cfg.Courier.Domain,
		Username: cfg.Courier.Username,
		Password: cfg.Courier.Password,
	})
	fc := courier.NewClient(httpClient, tokens, cache, courier.Config{
		APIURL:       cfg.Courier.APIURL,
		EcommerceURL: cfg.Courier.EcommerceURL,
		ClientID:     cfg.Courier.ClientID,
		UserAgent:    cfg.Courier.UserAgent,
		MaxRetries:   httpClient.MaxRetries(),
		ManifestTTL:  cfg.Lifecycle.ManifestTTL,
	})
	//endregion

	//region service
	var pub publisher = events.Discard{}
	if len(cfg.Kafka.Brokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.Kafka)
		log.Info(ctx, "publishing lifecycle events", zap.String("topic", cfg.Kafka.Topic))
	}

	svc := service.NewAWBService(pg, records, fc, cache, service.Settings{
		Lifecycle: cfg.Lifecycle,
		Sender:    cfg.Sender,
		TZOffset:  cfg.Courier.TZOffset,
	}).WithVerificationCache(cache).WithEvents(pub)

	var (
		mq       *queue.Client
		taskPub  queue.Publisher
		consumed <-chan struct{}
	)
	if cfg.RabbitMQ.URL != "" {
		mq, err = queue.Dial(cfg.RabbitMQ)
		if err != nil {
			log.Warn(ctx, "rabbitmq unavailable, tasks will run inline", zap.Error(err))
		} else {
			taskPub = mq
		}
	}
	dispatcher := queue.NewDispatcher(taskPub, svc)
	if mq != nil {
		deliveries, err := mq.Consume("awb-reconciler")
		if err != nil {
			log.Fatal(ctx, "failed to consume task queue", zap.Error(err))
		}
		done := make(chan struct{})
		consumed = done
		go func() {
			defer close(done)
			dispatcher.Consume(ctx, deliveries)
		}()
	}
	//endregion

	//region servers
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(handler.NewHandler(svc, dispatcher), log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info(ctx, "http listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http server failed", zap.Error(err))
			stop()
		}
	}()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal(ctx, "failed to listen for grpc", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	grpcServer := grpc.NewServer()
	monitor := health.NewMonitor(fc, health.DefaultInterval)
	monitor.Register(grpcServer)
	reflection.Register(grpcServer)
	go func() {
		log.Info(ctx, "grpc listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error(ctx, "grpc server failed", zap.Error(err))
		}
	}()
	go monitor.Run(ctx)

	go worker.NewReconciler(svc, cfg.Sweep).Start(ctx)
	//endregion

	<-ctx.Done()
	log.Info(ctx, "shutting down")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn(ctx, "failed to shutdown http server", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		grpcServer.GracefulStop()
	}()
	wg.Wait()

	if mq != nil {
		<-consumed
		if err := mq.Close(); err != nil {
			log.Warn(ctx, "failed to close rabbitmq", zap.Error(err))
		}
	}
	if err := pub.Close(); err != nil {
		log.Warn(ctx, "failed to close event publisher", zap.Error(err))
	}
	if err := cache.Close(); err != nil {
		log.Warn(ctx, "failed to close redis", zap.Error(err))
	}
	if err := pg.Close(); err != nil {
		log.Warn(ctx, "failed to close postgres", zap.Error(err))
	}
	log.Info(ctx, "stopped")
}

package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"semaphore/reports/internal/config"
	"semaphore/reports/internal/db"
	"semaphore/reports/internal/events"
	reportsgrpc "semaphore/reports/internal/grpc"
	internalhttp "semaphore/reports/internal/http"
	"semaphore/reports/internal/jobs"
	"semaphore/reports/internal/logger"
	"semaphore/reports/internal/notify"
	"semaphore/reports/internal/summary"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.Environment)
	log := logger.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()

	store := db.NewStore(pool)
	if cfg.DBAutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			log.Fatalf("db migrate failed: %v", err)
		}
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}()
	}

	notifier, err := notify.New(cfg.TelegramToken, cfg.ReviewerChatIDs)
	if err != nil {
		log.Fatalf("notifier init failed: %v", err)
	}

	server, err := internalhttp.NewServer(cfg, store, events.NewBroker(redisClient), summary.New(cfg, redisClient), notifier)
	if err != nil {
		log.Fatalf("server init failed: %v", err)
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serviceAuthInterceptor, err := reportsgrpc.NewServiceAuthUnaryInterceptor(cfg.ServiceAuthToken)
	if err != nil {
		log.Fatalf("grpc service auth init failed: %v", err)
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(reportsgrpc.LoggingUnaryInterceptor, serviceAuthInterceptor))
	reportsgrpc.RegisterReportQueryServiceServer(grpcServer, reportsgrpc.NewReportsServer(store.Queries))

	if _, err := jobs.StartReminderJob(ctx, cfg, store.Queries, notifier); err != nil {
		log.Fatalf("reminder job init failed: %v", err)
	}

	go func() {
		log.Printf("reports http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	go func() {
		listener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen error: %v", err)
		}
		log.Printf("reports grpc listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatalf("grpc server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	grpcServer.GracefulStop()
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"walletauth.org/internal/auth"
	"walletauth.org/internal/config"
	"walletauth.org/internal/httpapi"
	"walletauth.org/internal/indexer"
	"walletauth.org/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal("load config", zap.Error(err))
	}
	logger, err := obs.NewLogger(cfg.LogLevel)
	if err != nil {
		obs.Logger().Fatal("build logger", zap.Error(err))
	}
	obs.SetLogger(logger)
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	// Инициализация observability (регистрация метрик, build info)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Подключение к БД (если задан DSN); без DSN аккаунты живут в памяти
	var (
		db    *sql.DB
		store auth.Store
	)
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			logger.Fatal("open db", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = auth.NewPGStore(db)
	} else {
		logger.Warn("WALLETAUTH_PG_DSN not set, using in-memory account store")
		store = auth.NewMemoryStore()
	}

	chain, err := indexer.New(cfg.Indexer())
	if err != nil {
		logger.Fatal("indexer client", zap.Error(err))
	}
	engine, err := auth.NewEngine(chain, auth.WithLogger(logger))
	if err != nil {
		logger.Fatal("decision engine", zap.Error(err))
	}
	tokens, err := auth.NewTokenIssuer(cfg.TokenSecret, auth.WithTokenTTL(cfg.TokenTTL))
	if err != nil {
		logger.Fatal("token issuer", zap.Error(err))
	}
	svc, err := auth.NewService(store, engine, tokens, auth.WithPolicy(cfg.Policy()))
	if err != nil {
		logger.Fatal("auth service", zap.Error(err))
	}

	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(probe, version, svc, chain,
		httpapi.WithChallenges(httpapi.NewChallenges(cfg.NonceTTL, nil)),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcServer := grpc.NewServer()
	httpapi.NewGRPCServer(probe, version).Register(grpcServer)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("grpc listen", zap.Error(err))
	}

	logger.Info("starting walletauth-api",
		zap.String("version", version),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("grpc_addr", cfg.GRPCAddr),
		zap.String("indexer_network", cfg.IndexerNetwork))

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http listen", zap.Error(err))
		}
	}()
	go func() {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Fatal("grpc serve", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	grpcServer.GracefulStop()
	if db != nil {
		_ = db.Close()
	}
	logger.Info("stopped")
}

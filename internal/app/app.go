// Package app 提供信任监控服务的应用装配与生命周期
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cronosmart/trust-monitor/internal/blockchain"
	"github.com/cronosmart/trust-monitor/internal/cache"
	"github.com/cronosmart/trust-monitor/internal/config"
	"github.com/cronosmart/trust-monitor/internal/handler"
	"github.com/cronosmart/trust-monitor/internal/kafka"
	"github.com/cronosmart/trust-monitor/internal/repository"
	"github.com/cronosmart/trust-monitor/internal/router"
	"github.com/cronosmart/trust-monitor/internal/scheduler"
	"github.com/cronosmart/trust-monitor/internal/service"
	"github.com/cronosmart/trust-monitor/pkg/logger"
)

// App 信任监控应用
type App struct {
	cfg *config.Config

	db            *gorm.DB
	redisClient   *redis.Client
	chainClient   *blockchain.Client
	alertProducer *kafka.AlertProducer

	agent      *scheduler.Agent
	httpServer *http.Server
}

// New 装配应用
func New(cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	if err := a.initDB(); err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}
	if err := a.initRedis(); err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	chainClient, err := blockchain.NewClient(&blockchain.ClientConfig{
		RPCURLs: cfg.Chain.RPCURLs,
	})
	if err != nil {
		return nil, fmt.Errorf("init chain client: %w", err)
	}
	a.chainClient = chainClient

	scanner := blockchain.NewEscrowScanner(chainClient, common.HexToAddress(cfg.Chain.EscrowAddress))

	// 仓储
	logRepo := repository.NewAuditLogRepository(a.db, cfg.Monitor.Retention())
	alertRepo := repository.NewAuditAlertRepository(a.db)
	scoreRepo := repository.NewRiskScoreRepository(a.db)
	orderRepo := repository.NewOrderRepository(a.db)

	scoreCache := cache.NewScoreCache(a.redisClient, 10*time.Minute)

	// 告警发布 (可选)
	var publisher service.AlertPublisher
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewAlertProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			return nil, fmt.Errorf("init kafka producer: %w", err)
		}
		a.alertProducer = producer
		publisher = producer
	}

	highValue, err := decimal.NewFromString(cfg.Monitor.HighValueThreshold)
	if err != nil {
		highValue = decimal.NewFromInt(1000)
	}

	// 服务
	healthSvc := service.NewHealthService(
		cfg.Monitor.ProbeBaseURL,
		cfg.Monitor.ProbeEndpoints,
		cfg.Monitor.ProbeTimeout(),
		logRepo,
	)
	contractSvc := service.NewContractMonitorService(
		scanner, logRepo,
		uint64(cfg.Chain.ScanBlocks),
		common.HexToAddress(cfg.Chain.VaultAddress),
	)
	reconSvc := service.NewReconciliationService(
		orderRepo, alertRepo, scanner, publisher,
		uint64(cfg.Chain.ReconBlocks),
		cfg.Monitor.Lookback(),
	)
	fraudSvc := service.NewFraudService(
		orderRepo, scoreRepo, alertRepo, logRepo,
		scoreCache, publisher, highValue,
	)
	paymentSvc := service.NewPaymentService(
		chainClient,
		common.HexToAddress(cfg.Paywall.Receiver),
		cfg.Paywall.Token,
		cfg.Paywall.Price,
		cfg.Paywall.MinValue(),
	)
	deepScanSvc := service.NewDeepScanService(
		orderRepo, logRepo, scanner,
		highValue,
		uint64(cfg.Chain.DeepScanBlocks),
	)
	reportSvc := service.NewReportService(logRepo, alertRepo, scoreRepo)

	// 分层节拍：健康巡检每周期，扫描/对账与欺诈检测按倍数，
	// 过期日志每天清一次
	interval := cfg.Monitor.Interval()
	rpcTimeout := cfg.Chain.RPCTimeout()
	tasks := []*scheduler.CadenceTask{
		{
			Name: "health_checks",
			Run: func(ctx context.Context) error {
				_, err := healthSvc.RunHealthChecks(ctx)
				return err
			},
		},
		{
			Name:     "rpc_health",
			Interval: time.Duration(cfg.Monitor.ScanEveryCycles) * interval,
			Run: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
				defer cancel()
				return chainClient.HealthCheck(ctx)
			},
		},
		{
			Name:     "contract_scan",
			Interval: time.Duration(cfg.Monitor.ScanEveryCycles) * interval,
			Run: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
				defer cancel()
				_, err := contractSvc.ScanRecentEvents(ctx)
				return err
			},
		},
		{
			Name:     "reconciliation",
			Interval: time.Duration(cfg.Monitor.ScanEveryCycles) * interval,
			Run: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
				defer cancel()
				_, err := reconSvc.DetectMismatches(ctx)
				return err
			},
		},
		{
			Name:     "fraud_sweep",
			Interval: time.Duration(cfg.Monitor.FraudEveryCycles) * interval,
			Run: func(ctx context.Context) error {
				_, err := fraudSvc.DetectFraudPatterns(ctx)
				return err
			},
		},
		{
			Name:     "retention_purge",
			Interval: 24 * time.Hour,
			Run: func(ctx context.Context) error {
				purged, err := logRepo.PurgeExpired(ctx)
				if purged > 0 {
					logger.Info("expired audit logs purged", zap.Int64("rows", purged))
				}
				return err
			},
		},
	}
	a.agent = scheduler.NewAgent(interval, scheduler.SystemClock{}, tasks)

	// HTTP
	if cfg.Service.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	auditHandler := handler.NewAuditHandler(
		a.agent, chainClient, logRepo, alertRepo, scoreRepo,
		reportSvc, paymentSvc, deepScanSvc,
		cfg.Service.Name, cfg.Service.Version,
	)
	router.Register(engine, auditHandler, cfg.Monitor.AdminKey)

	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Service.HTTPPort),
		Handler: engine,
	}

	return a, nil
}

// initDB 初始化 PostgreSQL 连接
func (a *App) initDB() error {
	pg := a.cfg.Postgres
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		pg.Host, pg.Port, pg.User, pg.Password, pg.Database)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(pg.MaxConnections)
	sqlDB.SetMaxIdleConns(pg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(pg.ConnMaxLifetimeMinutes) * time.Minute)

	if err := autoMigrate(db); err != nil {
		return err
	}

	a.db = db
	return nil
}

// initRedis 初始化 Redis 连接
func (a *App) initRedis() error {
	client, err := cache.NewRedisClient(&cache.RedisConfig{
		Addr:     fmt.Sprintf("%s:%d", a.cfg.Redis.Host, a.cfg.Redis.Port),
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	a.redisClient = client
	return nil
}

// Run 启动监控代理与 HTTP 服务，阻塞直至服务退出
func (a *App) Run() error {
	if err := a.agent.Start(); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}

	logger.Info("http server listening", zap.String("addr", a.httpServer.Addr))
	if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅停机
func (a *App) Shutdown(ctx context.Context) {
	a.agent.Stop()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	if a.alertProducer != nil {
		if err := a.alertProducer.Close(); err != nil {
			logger.Warn("kafka producer close", zap.Error(err))
		}
	}

	a.chainClient.Close()

	if err := a.redisClient.Close(); err != nil {
		logger.Warn("redis close", zap.Error(err))
	}

	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info("service stopped")
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/canvasflow/api/handlers"
	"github.com/BaSui01/canvasflow/config"
	"github.com/BaSui01/canvasflow/events"
	"github.com/BaSui01/canvasflow/internal/metrics"
	"github.com/BaSui01/canvasflow/internal/pool"
	"github.com/BaSui01/canvasflow/internal/server"
	"github.com/BaSui01/canvasflow/providers"
	"github.com/BaSui01/canvasflow/store"
	"github.com/BaSui01/canvasflow/workflow"
	"github.com/BaSui01/canvasflow/workflow/dsl"
)

// =============================================================================
// 🌐 服务器组装
// =============================================================================

// Server 将引擎、存储、事件流和 HTTP 层装配成一个可运行的服务
type Server struct {
	cfg         *config.Config
	logger      *zap.Logger
	coordinator *workflow.Coordinator
	hub         *events.Hub
	app         *server.Manager
	metricsApp  *server.Manager
	cancelCtx   context.CancelFunc
}

// NewServer 按配置装配全部组件
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	collector := metrics.NewCollector("canvasflow", prometheus.DefaultRegisterer, logger)

	// --- 存储 ---
	runStore, canvasStore, err := openStores(cfg, logger)
	if err != nil {
		return nil, err
	}

	// --- 能力提供者 ---
	tools := providers.NewToolRegistry(logger)
	agents := providers.NewLocalAgentProvider(logger)
	evaluator := dsl.NewEvaluator()

	// --- 事件与协调器 ---
	hub := events.NewHub(logger)
	registry := workflow.NewRegistry(logger)

	coordinator := workflow.NewCoordinator(
		workflow.CoordinatorConfig{
			NodeTimeout: cfg.Engine.NodeTimeout,
			MaxSteps:    cfg.Engine.MaxSteps,
			Pool: pool.GoroutinePoolConfig{
				MaxWorkers: cfg.Engine.PoolMaxWorkers,
				QueueSize:  cfg.Engine.PoolQueueSize,
			},
		},
		runStore,
		canvasStore,
		tools,
		agents,
		evaluator,
		registry,
		hub,
		collector,
		logger,
	)

	// --- HTTP 路由 ---
	mux := http.NewServeMux()

	workflowHandler := handlers.NewWorkflowHandler(coordinator, canvasStore, logger)
	workflowHandler.RegisterRoutes(mux)

	healthHandler := handlers.NewHealthHandler(logger)
	healthHandler.RegisterRoutes(mux)
	mux.HandleFunc("GET /version", healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	wsHandler := events.NewWSHandler(hub, runStore, logger)
	mux.Handle("GET /ws/workflows/runs/{id}", wsHandler)

	// --- 中间件链 ---
	ctx, cancel := context.WithCancel(context.Background())
	middlewares := []Middleware{
		Recovery(logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(logger),
		MetricsMiddleware(collector),
		CORS(nil),
	}
	if cfg.Server.RateLimit > 0 {
		middlewares = append(middlewares, RateLimiter(ctx, cfg.Server.RateLimit, cfg.Server.RateBurst, logger))
	}
	if cfg.Server.APIKey != "" {
		skipPaths := []string{"/health", "/healthz", "/ready", "/version"}
		middlewares = append(middlewares, APIKeyAuth([]string{cfg.Server.APIKey}, skipPaths, logger))
	}
	handler := Chain(mux, middlewares...)

	appConfig := server.DefaultConfig()
	appConfig.Addr = fmt.Sprintf(":%d", cfg.Server.HTTPPort)
	appConfig.ReadTimeout = cfg.Server.ReadTimeout
	appConfig.WriteTimeout = cfg.Server.WriteTimeout
	appConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout

	s := &Server{
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "canvasflow_server")),
		coordinator: coordinator,
		hub:         hub,
		app:         server.NewManager(handler, appConfig, logger),
		cancelCtx:   cancel,
	}

	// 独立端口暴露 Prometheus 指标，避免被 API 鉴权挡住
	if cfg.Server.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", promhttp.Handler())
		metricsConfig := server.DefaultConfig()
		metricsConfig.Addr = fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		s.metricsApp = server.NewManager(metricsMux, metricsConfig, logger)
	}

	return s, nil
}

// Start 启动 API 服务器与指标服务器
func (s *Server) Start() error {
	if err := s.app.Start(); err != nil {
		return err
	}
	if s.metricsApp != nil {
		if err := s.metricsApp.Start(); err != nil {
			return err
		}
	}
	s.logger.Info("服务器已启动 | server started",
		zap.String("addr", s.app.Addr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// WaitForShutdown 阻塞直到收到终止信号，随后优雅关停
func (s *Server) WaitForShutdown() {
	s.app.WaitForShutdown()

	if s.metricsApp != nil {
		if err := s.metricsApp.Shutdown(context.Background()); err != nil {
			s.logger.Error("metrics server shutdown failed", zap.Error(err))
		}
	}
	s.cancelCtx()
	s.coordinator.Close()
}

// =============================================================================
// 💾 存储装配
// =============================================================================

// openStores 按配置打开运行存储与画布存储。
// Redis 启用时运行记录走 Redis，画布仍落库。
func openStores(cfg *config.Config, logger *zap.Logger) (workflow.RunStore, store.CanvasStore, error) {
	db, err := openDatabase(cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}

	canvasStore, err := store.NewGormCanvasStore(db)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Redis.Enabled {
		redisStore, err := store.NewRedisStore(store.RedisStoreConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("运行存储使用 Redis | run store backed by redis", zap.String("addr", cfg.Redis.Addr))
		return redisStore, canvasStore, nil
	}

	runStore, err := store.NewGormStore(db)
	if err != nil {
		return nil, nil, err
	}
	return runStore, canvasStore, nil
}

// openDatabase 根据配置打开数据库连接
func openDatabase(dbCfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dbCfg.Driver {
	case "postgres":
		dialector = postgres.Open(dbCfg.DSN())
	case "mysql":
		dialector = mysql.Open(dbCfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(dbCfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", dbCfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(dbCfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(dbCfg.MaxIdleConns)
		if dbCfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(dbCfg.ConnMaxLifetime)
		} else {
			sqlDB.SetConnMaxLifetime(5 * time.Minute)
		}
	}

	logger.Info("Database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storycast/cache"
	"storycast/config"
	"storycast/core/audio"
	"storycast/core/auth"
	"storycast/core/program"
	"storycast/core/queue"
	"storycast/db"
	"storycast/logger"
	"storycast/repository"
	"storycast/storage"

	"github.com/gorilla/mux"
)

// Server HTTP服务器
type Server struct {
	cfg        *config.Config
	router     *mux.Router
	httpServer *http.Server

	queue   *queue.Queue
	checker *program.Checker
	lock    *program.GenerationLock
	runs    repository.RunRepository
	hub     *statusHub

	stop chan struct{}
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:    cfg,
		router: mux.NewRouter(),
		stop:   make(chan struct{}),
	}
}

// Init 初始化依赖：对象存储、数据库、Redis、流水线。
// Redis连不上只降级不报错，其余失败直接返回。
func (s *Server) Init() error {
	if err := storage.InitMinio(s.cfg); err != nil {
		return fmt.Errorf("minio initialization failed: %w", err)
	}

	if err := db.InitDB(s.cfg); err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	if err := db.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}
	if err := db.InitGorm(s.cfg); err != nil {
		return fmt.Errorf("gorm initialization failed: %w", err)
	}

	// Redis是可选的加速层
	if err := cache.ConnectRedis(s.cfg); err != nil {
		logger.Warn("Redis连接失败，缓存层降级", logger.ErrorField(err))
	}

	store := storage.NewMinioObjectStore(s.cfg.MinioBucket)
	lister := storage.NewMinioRecordingLister(s.cfg.MinioBucket)
	engine := audio.NewFFmpegEngine(s.cfg.FFmpegPath)

	s.lock = program.NewGenerationLock()
	s.hub = newStatusHub()

	jobs := repository.NewMySQLJobRepository(db.DB)
	s.runs = repository.NewGormRunRepository(db.GormDB)

	// 调优参数不在这里固化，流水线每个任务开始时
	// 通过 CurrentSettings 取最新快照，配合 .env 热加载
	pipeline := program.NewPipeline(s.lock, jobs, s.runs, store, engine, s.cfg.TempDir, program.CurrentSettings)
	pipeline.OnStatusChange = s.hub.Broadcast

	s.queue = queue.New(jobs, s.lock, pipeline, s.cfg.MaxConcurrentJobs, s.cfg.SweepInterval)
	s.checker = program.NewChecker(store, lister)

	s.setupRoutes()
	return nil
}

// setupRoutes 注册路由
func (s *Server) setupRoutes() {
	s.router.Use(corsMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware)

	api.HandleFunc("/jobs", s.handleCreateJob).Methods("POST", "OPTIONS")
	api.HandleFunc("/jobs/{id}", s.handleGetJob).Methods("GET", "OPTIONS")
	api.HandleFunc("/jobs/{id}/ws", s.handleJobStream).Methods("GET")
	api.HandleFunc("/locks", s.handleLockProbe).Methods("GET", "OPTIONS")
	api.HandleFunc("/runs", s.handleRecentRuns).Methods("GET", "OPTIONS")
	api.HandleFunc("/generation/check", s.handleGenerationCheck).Methods("GET", "OPTIONS")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// corsMiddleware 处理跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start 启动服务并阻塞到收到退出信号
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         ":" + s.cfg.ServerPort,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.queue.Start(s.stop)

	if err := config.Watch(s.stop); err != nil {
		logger.Warn("配置热加载未启用", logger.ErrorField(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP服务已启动", logger.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		close(s.stop)
		return err
	case sig := <-quit:
		logger.Info("收到退出信号，开始优雅关闭", logger.String("signal", sig.String()))
	}

	close(s.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP服务关闭异常", logger.ErrorField(err))
	}

	cache.CloseRedis()
	if err := db.CloseDB(); err != nil {
		logger.Error("数据库关闭异常", logger.ErrorField(err))
	}

	logger.Info("服务已退出")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

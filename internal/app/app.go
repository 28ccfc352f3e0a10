package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"socratic_backend/internal/config"
	"socratic_backend/internal/controller"
	"socratic_backend/internal/repository"
	"socratic_backend/internal/service"
	"socratic_backend/pkg/configwatcher"
	"socratic_backend/pkg/database"
	"socratic_backend/pkg/document"
	"socratic_backend/pkg/llm"
	"socratic_backend/pkg/logger"
	"socratic_backend/pkg/monitoring"
	"socratic_backend/pkg/security"
	"socratic_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// configDir 配置目录，热加载时监听
const configDir = "configs"

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	Engine          *llm.Engine
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user       *repository.UserRepository
	question   *repository.QuestionRepository
	session    *repository.GenerationSessionRepository
	refinement *repository.RefinementRepository
}

type services struct {
	auth       *service.AuthService
	storage    *service.StorageService
	generator  *service.QuestionGeneratorService
	generation *service.GenerationService
	similarity *service.SimilarityService
	refinement *service.RefinementService
	question   *service.QuestionService
}

type controllers struct {
	auth       *controller.AuthController
	generation *controller.GenerationController
	similarity *controller.SimilarityController
	refinement *controller.RefinementController
	question   *controller.QuestionController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		question:   repository.NewQuestionRepository(db),
		session:    repository.NewGenerationSessionRepository(db),
		refinement: repository.NewRefinementRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, engine *llm.Engine, store service.ConversationStore) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.generator = service.NewQuestionGeneratorService(engine, cfg.Generation)
	s.generation = service.NewGenerationService(s.generator, repos.session, s.storage, document.Extractor{}, cfg)
	s.similarity = service.NewSimilarityService(s.generator, repos.session, cfg.Generation)
	s.refinement = service.NewRefinementService(s.generator, repos.question, repos.refinement, store, cfg.Generation.MinInstructionLength)
	s.question = service.NewQuestionService(repos.question)

	return s
}

func (a *App) initControllers(s *services, cfg *config.Config) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		generation: controller.NewGenerationController(s.generation, cfg),
		similarity: controller.NewSimilarityController(s.similarity),
		refinement: controller.NewRefinementController(s.refinement),
		question:   controller.NewQuestionController(s.question),
		health:     controller.NewHealthController(a.DB, a.Redis),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// engineOptions 配置中的 ai 段映射为生成默认值
func engineOptions(ai config.AIConfig) llm.Options {
	return llm.Options{
		Model:       ai.Model,
		Temperature: ai.Temperature,
		MaxTokens:   ai.MaxTokens,
		MaxRetries:  ai.MaxRetries,
	}
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.ForceMigrate || cfg.Server.Mode != "release")
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}
	if cfg.MigrateOnly {
		return app
	}

	// 只有 redis 会话存储需要 Redis
	if cfg.Conversation.Store == "redis" {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		}
		app.Redis = rdb
	}

	store, err := service.NewConversationStore(cfg.Conversation, app.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize conversation store", zap.Error(err))
	}

	backend, err := llm.NewBackend(cfg.AI.Provider, cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Timeout())
	if err != nil {
		logger.Log.Fatal("Failed to initialize model backend", zap.Error(err))
	}
	app.Engine = llm.NewEngine(backend, engineOptions(cfg.AI))
	logger.Log.Info("Model backend ready",
		zap.String("provider", cfg.AI.Provider),
		zap.String("model", cfg.AI.Model),
	)

	repos := app.initRepositories(db)
	svcs := app.initServices(repos, cfg, app.Engine, store)
	ctrls := app.initControllers(svcs, cfg)

	if err := svcs.auth.EnsureSuperuser(); err != nil {
		logger.Log.Error("Failed to create first superuser", zap.Error(err))
	}

	// ai 段热更新只影响之后的调用
	app.RegisterConfigCallback(func(newCfg *config.Config) {
		app.Engine.SetDefaults(engineOptions(newCfg.AI))
		logger.Log.Info("Model defaults reloaded",
			zap.String("model", newCfg.AI.Model),
			zap.Int("max_retries", newCfg.AI.MaxRetries),
		)
	})

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Server.Name, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.registerRoutes(router, ctrls, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app
}

// watchConfig 配置文件变更时依次执行回调
func (a *App) watchConfig(ctx context.Context) {
	err := configwatcher.WatchConfig(ctx, configDir, func(newCfg *config.Config) {
		for _, cb := range a.configCallbacks {
			cb(newCfg)
		}
	})
	if err != nil {
		logger.Log.Warn("Config hot reload disabled", zap.Error(err))
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go a.watchConfig(watchCtx)

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")
	stopWatch()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
}

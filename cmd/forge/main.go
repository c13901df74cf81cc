package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitfantasy/forge/internal/config"
	"github.com/bitfantasy/forge/internal/industry/entity"
	"github.com/bitfantasy/forge/internal/industry/handler"
	"github.com/bitfantasy/forge/internal/industry/repository"
	"github.com/bitfantasy/forge/internal/industry/service"
	"github.com/bitfantasy/forge/internal/middleware"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting forge service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&entity.ItemType{},
		&entity.Recipe{},
		&entity.RecipeMaterial{},
		&entity.Character{},
		&entity.CharacterRecipe{},
		&entity.Plan{},
		&entity.PlanEntry{},
		&entity.MaterialLine{},
		&entity.ProductLine{},
	); err != nil {
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}

	// AutoMigrate 不建部分索引，用原始SQL补
	migrationSQL := []string{
		"CREATE INDEX IF NOT EXISTS idx_plan_entries_built ON plan_entries(plan_id) WHERE built_runs > 0",
		"CREATE INDEX IF NOT EXISTS idx_material_lines_method ON material_lines(plan_id, acquisition_method)",
	}
	for _, sql := range migrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			zapLogger.Warn("migration warning", zap.String("sql", sql), zap.Error(err))
		}
	}

	// Redis
	rdb := initRedis(cfg.Redis)

	// 仓库、服务、处理器
	repos := repository.NewRepositories(db)
	services := service.NewServices(db, repos, rdb, cfg, zapLogger)
	handlers := handler.NewHandlers(services)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // Disable for SSE long-lived connections
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	v1 := r.Group("/api/v1")
	{
		// SSE 实时推送（需要认证，支持 query param token）
		events := v1.Group("/events")
		events.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			events.GET("", h.Events.Stream)
		}

		// 需要认证的接口
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			// 角色
			characters := authorized.Group("/characters")
			{
				characters.POST("", h.Character.CreateCharacter)
				characters.GET("", h.Character.ListCharacters)
				characters.GET("/:id", h.Character.GetCharacter)
				characters.PUT("/:id", h.Character.UpdateCharacter)
				characters.PUT("/:id/recipes", h.Character.SetOwnedRecipe)
				characters.GET("/:id/recipes", h.Character.ListOwnedRecipes)
			}

			// 目录
			catalog := authorized.Group("/catalog")
			{
				catalog.GET("/types", h.Catalog.ListTypes)
				catalog.GET("/types/:typeId", h.Catalog.GetType)
				catalog.GET("/recipes", h.Catalog.ListRecipes)
				catalog.GET("/recipes/:recipeId", h.Catalog.GetRecipe)
				catalog.GET("/template", h.Catalog.DownloadTemplate)

				// 目录导入仅限管理员
				catalogAdmin := catalog.Group("")
				catalogAdmin.Use(middleware.RequireRole("forge_admin"))
				{
					catalogAdmin.POST("/import", h.Catalog.ImportWorkbook)
					catalogAdmin.POST("/types/import", h.Catalog.ImportTypesCSV)
				}
			}

			// 计划
			plans := authorized.Group("/plans")
			{
				plans.POST("", h.Plan.CreatePlan)
				plans.GET("", h.Plan.ListPlans)
				plans.GET("/:id", h.Plan.GetPlan)
				plans.PUT("/:id", h.Plan.UpdatePlan)
				plans.DELETE("/:id", h.Plan.DeletePlan)
				plans.GET("/:id/summary", h.Plan.GetSummary)
				plans.POST("/:id/recalculate", h.Plan.Recalculate)
				plans.GET("/:id/export", h.Plan.ExportPlan)

				plans.POST("/:id/entries", h.Plan.AddEntry)
				plans.GET("/:id/entries", h.Plan.ListEntries)
				plans.POST("/:id/entries/batch", h.Plan.BulkUpdateEntries)
				plans.PUT("/:id/entries/:entryId", h.Plan.UpdateEntry)
				plans.DELETE("/:id/entries/:entryId", h.Plan.RemoveEntry)
				plans.POST("/:id/entries/:entryId/built", h.Plan.MarkBuilt)

				plans.GET("/:id/materials", h.Plan.ListMaterials)
				plans.PUT("/:id/materials/:typeId/acquisition", h.Plan.UpdateAcquisition)
				plans.GET("/:id/products", h.Plan.ListProducts)
			}
		}
	}
}

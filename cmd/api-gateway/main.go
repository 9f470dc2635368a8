package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/schoolware/course-admin-api/api/swagger"
	"github.com/schoolware/course-admin-api/internal/handler"
	"github.com/schoolware/course-admin-api/internal/middleware"
	"github.com/schoolware/course-admin-api/internal/repository"
	"github.com/schoolware/course-admin-api/internal/service"
	"github.com/schoolware/course-admin-api/pkg/cache"
	"github.com/schoolware/course-admin-api/pkg/config"
	"github.com/schoolware/course-admin-api/pkg/database"
	"github.com/schoolware/course-admin-api/pkg/logger"
	corsmiddleware "github.com/schoolware/course-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/schoolware/course-admin-api/pkg/middleware/requestid"
)

// @title Course Admin API
// @version 1.0.0
// @description Course management service for the school administration panel
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey bearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	var cacheRepo service.CacheRepository
	if cfg.Courses.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, continuing without course cache", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	validate := validator.New()

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Courses.CacheTTL, logr, cfg.Courses.CacheEnabled && cacheRepo != nil)

	courseRepo := repository.NewCourseRepository(db)
	userRepo := repository.NewUserRepository(db)

	courseSvc := service.NewCourseService(courseRepo, cacheSvc, metricsSvc, validate, logr, service.CourseConfig{
		DefaultPageSize: cfg.Courses.DefaultPageSize,
		MaxPageSize:     cfg.Courses.MaxPageSize,
	})
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	courseHandler := handler.NewCourseHandler(courseSvc)
	authHandler := handler.NewAuthHandler(authSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if metricsSvc != nil {
		r.Use(middleware.Metrics(metricsSvc))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if metricsSvc != nil {
		r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	courses := api.Group("/courses")
	courses.Use(middleware.JWT(authSvc))
	{
		courses.GET("", courseHandler.List)
		courses.POST("", courseHandler.Create)
		courses.GET("/:id", courseHandler.Get)
		courses.PUT("/:id", courseHandler.Update)
		courses.DELETE("/:id", courseHandler.Delete)
		courses.POST("/:id/students", courseHandler.Enroll)
		courses.DELETE("/:id/students/:studentId", courseHandler.Unenroll)
		courses.GET("/:id/roster/export", courseHandler.ExportRoster)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

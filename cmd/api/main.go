package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/opencampus/thesis-match-api/api/swagger"
	"github.com/opencampus/thesis-match-api/internal/handler"
	"github.com/opencampus/thesis-match-api/internal/middleware"
	"github.com/opencampus/thesis-match-api/internal/models"
	"github.com/opencampus/thesis-match-api/internal/repository"
	"github.com/opencampus/thesis-match-api/internal/service"
	"github.com/opencampus/thesis-match-api/pkg/cache"
	"github.com/opencampus/thesis-match-api/pkg/config"
	"github.com/opencampus/thesis-match-api/pkg/database"
	"github.com/opencampus/thesis-match-api/pkg/logger"
	corsmiddleware "github.com/opencampus/thesis-match-api/pkg/middleware/cors"
	reqidmiddleware "github.com/opencampus/thesis-match-api/pkg/middleware/requestid"
)

// @title Thesis Match API
// @version 1.0.0
// @description Thesis catalog, enrollment workflow and supervisor-student chat
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	supervisorRepo := repository.NewSupervisorRepository(db)
	thesisRepo := repository.NewThesisRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	chatRepo := repository.NewChatRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	thesisSvc := service.NewThesisService(thesisRepo, supervisorRepo, studentRepo, cacheRepo, metricsSvc, service.CatalogPolicy{
		BachelorThesisCap: cfg.Catalog.BachelorThesisCap,
		AdvancedThesisCap: cfg.Catalog.AdvancedThesisCap,
		ListCacheTTL:      cfg.Catalog.ListCacheTTL,
		CacheEnabled:      cfg.Catalog.CacheEnabled,
	}, validate, logr)
	requestSvc := service.NewRequestService(requestRepo, studentRepo, supervisorRepo, thesisSvc, validate, logr)
	chatSvc := service.NewChatService(chatRepo, userRepo, cfg.Chat.MessagePageSize, validate, logr)
	profileSvc := service.NewProfileService(studentRepo, supervisorRepo, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	thesisHandler := handler.NewThesisHandler(thesisSvc)
	requestHandler := handler.NewRequestHandler(requestSvc)
	chatHandler := handler.NewChatHandler(chatSvc)
	profileHandler := handler.NewProfileHandler(profileSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		theses := protected.Group("/theses")
		{
			theses.GET("", thesisHandler.List)
			theses.GET("/export", middleware.RBAC(models.RoleSupervisor, models.RoleAdmin), thesisHandler.Export)
			theses.GET("/:id", thesisHandler.Get)
			theses.POST("", middleware.RBAC(models.RoleSupervisor, models.RoleAdmin), thesisHandler.Create)
			theses.DELETE("/:id", middleware.RBAC(models.RoleSupervisor, models.RoleAdmin), thesisHandler.Delete)
		}

		requests := protected.Group("/requests")
		{
			requests.POST("", middleware.RBAC(models.RoleStudent), requestHandler.Create)
			requests.PATCH("/:id/status", middleware.RBAC(models.RoleSupervisor, models.RoleAdmin), requestHandler.SetStatus)
			requests.DELETE("/:id", requestHandler.Delete)
		}

		students := protected.Group("/students")
		{
			students.GET("/:id", profileHandler.GetStudent)
			students.GET("/:id/requests", requestHandler.ListByStudent)
		}

		supervisors := protected.Group("/supervisors")
		{
			supervisors.GET("/:id", profileHandler.GetSupervisor)
			supervisors.PUT("/:id", middleware.RBAC(models.RoleAdmin, models.RoleSupervisor), profileHandler.UpdateSupervisor)
			supervisors.GET("/:id/requests", requestHandler.ListBySupervisor)
		}

		chats := protected.Group("/chats")
		{
			chats.GET("", chatHandler.List)
			chats.POST("", chatHandler.Create)
			chats.GET("/:id/messages", chatHandler.Messages)
			chats.POST("/:id/messages", chatHandler.Send)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

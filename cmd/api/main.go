package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "opsconsole/api/swagger" // swagger docs
	"opsconsole/internal/config"
	"opsconsole/internal/database"
	"opsconsole/internal/handler"
	"opsconsole/internal/logger"
	"opsconsole/internal/middleware"
	"opsconsole/internal/repository"
	"opsconsole/internal/repository/memory"
	"opsconsole/internal/service"
	"opsconsole/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Notification Policy Console API
// @version         1.0
// @description     Operation catalog, templates and the role permission matrix of the logistics platform.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("configs/.env")
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, log)
	if err != nil {
		log.Fatal("store setup failed", zap.Error(err))
	}

	// Set up WebSocket Hub; every service publishes its change events through it
	wsHub := websocket.NewHub(log)
	go wsHub.Run(ctx)
	publish := service.WithPublisher(wsHub)

	// Set up dependencies (Repository -> Service -> Handler)
	matrixService := service.NewMatrixService(store, log, publish)
	roleService := service.NewRoleService(store, matrixService, log, publish)
	operationService := service.NewOperationService(store, matrixService, log, publish)
	templateService := service.NewTemplateService(store, log, publish)
	notificationService := service.NewNotificationService(store, log, publish)
	subscriptionService := service.NewSubscriptionService(store, log, publish)
	snapshotService := service.NewSnapshotService(store, log, publish)
	auditService := service.NewAuditService(store, log)

	if cfg.App.SeedRoles {
		if err := roleService.SeedDefaultRoles(ctx); err != nil {
			log.Fatal("role seeding failed", zap.Error(err))
		}
	}

	auth := middleware.NewAuth(cfg.Auth.JWTSecret)
	roleCodes := make([]string, 0, len(service.DefaultRoles))
	for _, r := range service.DefaultRoles {
		roleCodes = append(roleCodes, r.Code)
	}

	// Initialize Handlers
	handlers := []interface {
		RegisterRoutes(router *gin.RouterGroup)
	}{
		handler.NewRoleHandler(roleService, auth, roleCodes),
		handler.NewOperationHandler(operationService, auth),
		handler.NewTemplateHandler(templateService, auth),
		handler.NewMatrixHandler(matrixService, auth),
		handler.NewProjectionHandler(notificationService, subscriptionService, roleService, auth, roleCodes),
		handler.NewSnapshotHandler(snapshotService, auth),
		handler.NewAuditHandler(auditService, auth),
	}

	gin.SetMode(cfg.App.GinMode)
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.App.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "store": cfg.Database.Driver, "ws_clients": wsHub.Clients()})
	})

	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, auth, c)
	})

	for _, h := range handlers {
		h.RegisterRoutes(router.Group(""))
	}

	srv := &http.Server{Addr: ":" + cfg.App.Port, Handler: router}
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("server stopped")
}

// openStore returns the configured persistence: PostgreSQL through GORM, or the
// in-process store used for demos and local development
func openStore(cfg *config.Config, log *zap.Logger) (*repository.Store, error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), nil
	}

	db, err := database.NewConnection(cfg.Database.DSN(), log)
	if err != nil {
		return nil, err
	}
	log.Info("connected to PostgreSQL", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.Name))
	return repository.NewStore(db), nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blinkportal/backend/internal/config"
	"github.com/blinkportal/backend/internal/db"
	"github.com/blinkportal/backend/internal/handler"
	"github.com/blinkportal/backend/internal/logs"
	"github.com/blinkportal/backend/internal/notify"
	"github.com/blinkportal/backend/internal/router"
	"github.com/blinkportal/backend/internal/service"
	"github.com/blinkportal/backend/pkg/encrypt"
	"github.com/blinkportal/backend/pkg/gcalendar"
	"github.com/blinkportal/backend/pkg/mq"
	"github.com/blinkportal/backend/pkg/obs"
	"github.com/blinkportal/backend/pkg/sharepoint"
	"github.com/blinkportal/backend/pkg/tokencache"
)

func main() {
	// Load config
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := logs.Init(logs.Options{Level: cfg.Logs.Level, Format: cfg.Logs.Format, File: cfg.Logs.File}); err != nil {
		log.Fatalf("init logs: %v", err)
	}
	logger := logs.Logger

	ctx := context.Background()

	// Tracing
	if cfg.Tracing.Enabled {
		shutdown, err := obs.InitTracer(ctx, obs.Options{
			ServiceName: cfg.Tracing.ServiceName,
			Environment: cfg.Server.Mode,
			Endpoint:    cfg.Tracing.Endpoint,
		})
		if err != nil {
			logger.WithError(err).Warn("tracing disabled")
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(sctx)
			}()
		}
	}

	// Database
	level := gormlogger.Silent
	if cfg.Server.Mode == "debug" {
		level = gormlogger.Warn
	}
	gdb, err := db.Open(cfg.Database.Driver, cfg.Database.ConnString(), level)
	if err != nil {
		logger.Fatalf("connect database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Fatalf("auto migrate: %v", err)
	}

	// Redis backs the shared token cache and oauth state; without it each
	// instance keeps its own.
	var cache tokencache.Store
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).Warn("redis unavailable, using in-process token cache")
		cache = tokencache.NewMemoryStore()
	} else {
		cache = tokencache.NewRedisStore(rdb)
	}
	cancel()
	defer rdb.Close()

	// Document storage
	docs := sharepoint.New(sharepoint.Config{
		TenantID:     cfg.SharePoint.TenantID,
		ClientID:     cfg.SharePoint.ClientID,
		ClientSecret: cfg.SharePoint.ClientSecret,
		SiteID:       cfg.SharePoint.SiteID,
		DriveID:      cfg.SharePoint.DriveID,
		Timeout:      cfg.SharePoint.Timeout,
	}, cache)
	if !docs.Configured() {
		logger.Warn("sharepoint not configured, uploads will be rejected")
	}

	// Google Calendar
	var cipher *encrypt.Cipher
	if cfg.Encrypt.AESKey != "" {
		if cipher, err = encrypt.NewCipher(cfg.Encrypt.AESKey); err != nil {
			logger.Fatalf("init cipher: %v", err)
		}
	}
	credStore := service.NewCredentialStore(gdb, cipher)
	var (
		calendar     service.Calendar
		calendarAuth service.CalendarAuth
	)
	if cfg.Google.Enabled {
		gc, err := gcalendar.New(gcalendar.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURI:  cfg.Google.RedirectURI,
			CalendarID:   cfg.Google.CalendarID,
			TimeZone:     cfg.Google.TimeZone,
		}, credStore)
		if err != nil {
			logger.WithError(err).Warn("google calendar disabled")
		} else {
			calendar = gc
			calendarAuth = gc
		}
	}

	// Notifier
	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.MQ.Enabled {
		pub, err := mq.NewPublisher(cfg.MQ.URL, cfg.MQ.Exchange)
		if err != nil {
			logger.WithError(err).Warn("rabbitmq unavailable, events will not be published")
		} else {
			defer pub.Close()
			notifier = notify.NewAMQPNotifier(pub)
		}
	}

	// Services
	bookingService := service.NewBookingService(gdb, calendar, notifier, cfg.Google.Timeout)
	authService := service.NewAuthService(gdb, bookingService, cfg.JWT.Secret,
		time.Duration(cfg.JWT.AccessExpireMinutes)*time.Minute,
		time.Duration(cfg.JWT.RefreshExpireDays)*24*time.Hour)
	projectService := service.NewProjectService(gdb, docs)
	documentService := service.NewDocumentService(gdb, docs)
	requestService := service.NewRequestService(gdb, notifier)
	dashboardService := service.NewDashboardService(gdb)
	calendarService := service.NewCalendarService(gdb, credStore, calendarAuth, cache)

	// Gin engine
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Setup routes
	router.Setup(r, router.Deps{
		DB:                 gdb,
		JWTSecret:          cfg.JWT.Secret,
		CORSOrigins:        cfg.Server.CORSOrigins,
		AuthHandler:        handler.NewAuthHandler(authService),
		UserHandler:        handler.NewUserHandler(authService),
		ProjectHandler:     handler.NewProjectHandler(projectService),
		DocumentHandler:    handler.NewDocumentHandler(documentService),
		BookingHandler:     handler.NewBookingHandler(bookingService),
		RequestHandler:     handler.NewRequestHandler(requestService),
		DashboardHandler:   handler.NewDashboardHandler(dashboardService),
		IntegrationHandler: handler.NewIntegrationHandler(calendarService),
		HealthHandler:      handler.NewHealthHandler(gdb),
	})

	// Start server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.RequestTimeout,
	}
	go func() {
		logger.Infof("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server run: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	sctx, scancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.WithError(err).Error("server shutdown")
	}
}

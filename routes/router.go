package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cppla/docintake/config"
	"github.com/cppla/docintake/controllers"
	"github.com/cppla/docintake/intake"
	"github.com/cppla/docintake/metrics"
	"github.com/cppla/docintake/middleware"
	"github.com/cppla/docintake/notify"
	"github.com/cppla/docintake/store"
	"github.com/cppla/docintake/utils"
)

// Deps are the long-lived services the HTTP layer serves.
type Deps struct {
	Config     config.AppConfig
	Links      *store.LinkStore
	Pipeline   *intake.Pipeline
	Dispatcher notify.Dispatcher
	Throttle   utils.IntakeThrottle
	Metrics    *metrics.Metrics
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(d Deps) *gin.Engine {
	cfg := d.Config
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	// Access log goes to its own rolling file; fall back to the app logger.
	gl := utils.Logger
	if cfg.GinPath != "" {
		if l, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress); err == nil {
			gl = l
		} else {
			utils.Sugar.Warnw("gin access log unavailable, using app logger", "path", cfg.GinPath, "error", err)
		}
	}
	r.Use(utils.Ginzap(gl, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(gl, true))
	r.Use(d.Metrics.Middleware())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/health", controllers.Health)

	throttle := d.Throttle
	if throttle == nil {
		throttle = utils.NewIntakeThrottle(nil, cfg.IntakeMaxPerSlugPerHour)
	}
	linkController := controllers.NewLinkController(d.Links, d.Pipeline, d.Metrics, cfg.PublicBaseURL)
	uploadController := controllers.NewUploadController(d.Pipeline, d.Dispatcher, d.Metrics)

	r.GET("/u/:slug", linkController.Redirect)

	api := r.Group("/api")
	api.Use(middleware.RateLimit(cfg.RateLimitPerMinute))

	// The upload form reads its link without operator credentials.
	api.GET("/links/:slug", linkController.GetLink)

	operator := api.Group("/links")
	operator.Use(middleware.OperatorRequired(cfg.OperatorSecret))
	operator.POST("", linkController.CreateLink)
	operator.GET("", linkController.ListLinks)
	operator.DELETE("/:slug", linkController.DeleteLink)
	operator.GET("/:slug/manifests", linkController.ListManifests)

	// Room for every file at the ceiling plus form fields.
	bodyLimit := int64(cfg.MaxFilesPerRequest)*cfg.MaxFileBytes() + 1<<20
	upload := api.Group("/upload")
	upload.Use(middleware.MaxBodySize(bodyLimit), middleware.IntakeThrottle(throttle))
	upload.POST("/:slug", uploadController.UploadForLink)
	upload.POST("", uploadController.UploadForApplication)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, "not_found", "route not found")
	})

	return r
}

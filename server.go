package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/advisor_backend/alerting"
	"bitbucket.org/mmdatafocus/advisor_backend/config"
	"bitbucket.org/mmdatafocus/advisor_backend/middlewares"
	"bitbucket.org/mmdatafocus/advisor_backend/models"
	"bitbucket.org/mmdatafocus/advisor_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("advisor-backend")

// RateLimiter throttles requests per client key using a Redis counter. The
// client is resolved per request because Redis connects after the server
// starts listening.
type RateLimiter struct {
	prefix string
	limit  int64
	window time.Duration
}

func NewRateLimiter(prefix string, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Middleware counts requests per authenticated user, falling back to the
// client IP for anonymous calls.
func (rl *RateLimiter) Middleware(c *gin.Context) {
	client := config.GetRedisDB()
	if client == nil {
		c.Next()
		return
	}

	key := rl.prefix + ":" + c.ClientIP()
	if userId, ok := utils.GetUserIdFromContext(c.Request.Context()); ok {
		key = fmt.Sprintf("%s:user:%d", rl.prefix, userId)
	}

	count, err := config.GetRedisCounter(c.Request.Context(), key)
	if err != nil {
		// Redis trouble must not take the API down.
		c.Next()
		return
	}

	// First hit in the window owns the expiry.
	if count == 1 {
		if err := client.Expire(c.Request.Context(), key, rl.window).Err(); err != nil {
			c.Next()
			return
		}
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func registerValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		return models.Severity(fl.Field().String()).IsValid()
	})
	v.RegisterValidation("comparator", func(fl validator.FieldLevel) bool {
		return alerting.Comparator(fl.Field().String()).IsValid()
	})
}

// customErrorLogger logs request errors only, tagged with whatever request
// identity is in context.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		fields := logrus.Fields{}
		if cid, ok := utils.GetCorrelationIdFromContext(c.Request.Context()); ok {
			fields["correlation_id"] = cid
		}
		if email, ok := utils.GetUserEmailFromContext(c.Request.Context()); ok {
			fields["user_email"] = email
		}
		logger.WithFields(fields).Error(c.Errors.String())
	}
}

// readinessGate returns 503 for app routes until the database and Redis have
// connected. The probe endpoints are exempt so they can answer for themselves.
func readinessGate(c *gin.Context) {
	switch c.Request.URL.Path {
	case "/healthz":
		c.Status(http.StatusNoContent)
		c.Abort()
		return
	case "/readyz":
		c.Next()
		return
	}
	if config.GetDB() == nil || config.GetRedisDB() == nil {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	c.Next()
}

func readyzHandler(c *gin.Context) {
	db := config.GetDB()
	if db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	sqlDB, err := db.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// sessionClaim resolves the authenticated user or writes the 401 itself.
func sessionClaim(c *gin.Context) *utils.JwtCustomClaim {
	claim := middlewares.CtxValue(c.Request.Context())
	if claim == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	return claim
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	_ = godotenv.Load()

	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()
	settings := config.DefaultSettings()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	registerValidators()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()

	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Writer.Header().Set("x-correlation-id", cid)
		c.Next()
	})
	r.Use(readinessGate)

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/readyz", readyzHandler)

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist via CORS_ALLOWED_ORIGINS.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	uploadLimiter := NewRateLimiter("ratelimit:upload", settings.UploadRateLimit, time.Minute)

	api := r.Group("/api/v1")
	{
		api.POST("/uploads", uploadLimiter.Middleware, uploadHandler(settings))
		api.GET("/uploads", listUploadsHandler())
		api.GET("/uploads/:uploadId", getUploadHandler())
		api.GET("/uploads/:uploadId/leakages", listUploadLeakagesHandler())

		api.GET("/alerts/metrics", alertMetricsHandler())
		api.POST("/alerts", createAlertHandler())
		api.GET("/alerts", listAlertsHandler())
		api.GET("/alerts/:alertId", getAlertHandler())
		api.PUT("/alerts/:alertId", updateAlertHandler())
		api.DELETE("/alerts/:alertId", deleteAlertHandler())

		api.GET("/notifications", listNotificationsHandler())
		api.GET("/notifications/unread-count", unreadNotificationCountHandler())
		api.POST("/notifications/read-all", markAllNotificationsReadHandler())
		api.PATCH("/notifications/:notificationId/read", markNotificationReadHandler())

		api.POST("/reports/uploads/:uploadId", createReportHandler())
		api.GET("/reports", listReportsHandler())
		api.GET("/reports/:reportId/download", downloadReportHandler())

		api.GET("/dashboard/summary", dashboardSummaryHandler())
	}

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (the startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	// AutoMigrate can run DDL that blocks tables; allow disabling it on
	// startup and running migrations as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Panic(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/api/v1")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

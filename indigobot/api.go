package indigobot

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

const (
	apiPathHealth = "/api/health"
	apiPathStatus = "/api/status"

	xRequestIDHeader = "X-Request-ID"
)

// API is a small read-only HTTP server exposing the bot's health and
// status for operators and uptime checks. It never mutates bot state.
type API struct {
	bot              *IndigoBot
	config           *APIConfig
	engine           *gin.Engine
	httpServer       *http.Server
	listener         net.Listener
	logger           *slog.Logger
	requestMetrics   map[string]int
	requestMetricsMu sync.Mutex
}

// botStatus is the response body for the status endpoint.
type botStatus struct {
	Version          string  `json:"version"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	DiscordConnected bool    `json:"discord_connected"`
	ActiveReminders  int     `json:"active_reminders"`
	RemindersFired   int64   `json:"reminders_fired"`
	SchedulerState   string  `json:"scheduler_state"`
}

func newAPI(b *IndigoBot, config *APIConfig) *API {
	setupLogger := slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	api := &API{
		bot:            b,
		config:         config,
		engine:         r,
		requestMetrics: map[string]int{},
		logger:         setupLogger.With(loggerNameKey, "api"),
	}

	api.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	r.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		ginLoggingMiddleware(),
		metricMiddleware(api),
	)

	r.GET(apiPathHealth, api.healthCheck)
	r.GET(apiPathStatus, api.getStatus)

	return api
}

// Serve listens on the configured address and serves until the
// underlying listener is closed.
func (a *API) Serve(ctx context.Context) error {
	if a.listener == nil {
		listenCfg := &net.ListenConfig{}
		ln, err := listenCfg.Listen(ctx, a.config.ListenNetwork, a.config.Listen)
		if err != nil {
			return fmt.Errorf("error listening on %q: %w", a.config.Listen, err)
		}
		a.listener = ln
	}
	a.logger.Info("starting API server", "listen", a.config.Listen)
	return a.httpServer.Serve(a.listener)
}

func (a *API) shutdown(ctx context.Context) {
	if err := a.httpServer.Shutdown(ctx); err != nil &&
		!errors.Is(err, http.ErrServerClosed) {
		a.logger.Error("error shutting down API server", tint.Err(err))
	}
}

// healthCheck responds 204 when the process is up. It intentionally
// carries no body.
func (a *API) healthCheck(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func (a *API) getStatus(c *gin.Context) {
	b := a.bot

	status := botStatus{
		Version:         Version,
		ActiveReminders: b.registry.Len(),
		SchedulerState:  b.scheduler.State().String(),
		RemindersFired:  b.scheduler.RemindersFired(),
	}
	if b.discord != nil {
		status.DiscordConnected = b.discord.Connected()
	}
	if !b.startedAt.IsZero() {
		status.UptimeSeconds = time.Since(b.startedAt).Seconds()
	}

	c.JSON(http.StatusOK, status)
}

func generateRandomHexString(length int) (string, error) {
	bytes := make([]byte, length/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := generateRandomHexString(32)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

// ginContextLogger returns the slog.Logger from the given gin context,
// or, if it doesn't exist, creates a logger with request details included,
// and sets the logger in the context so the next call to ginContextLogger
// will return the new logger.
func ginContextLogger(c *gin.Context) *slog.Logger {
	var requestLogger *slog.Logger
	logger, ok := c.Get(string(loggerContextKey))
	if ok {
		requestLogger, ok = logger.(*slog.Logger)
		if ok {
			return requestLogger
		}
	}
	requestLogger = slog.Default()
	requestID, _ := c.Get(xRequestIDHeader)
	path := c.Request.URL.Path
	raw := c.Request.URL.RawQuery
	if raw != "" {
		path = path + "?" + raw
	}

	requestLogger = requestLogger.With(
		slog.Group(
			"request",
			"method", c.Request.Method,
			"path", path,
			"remote_addr", c.Request.RemoteAddr,
			"remote_ip", c.RemoteIP(),
			"user_agent", c.Request.UserAgent(),
		),
		slog.Any(xRequestIDHeader, requestID),
	)
	c.Set(string(loggerContextKey), requestLogger)
	return requestLogger
}

// ginLoggingMiddleware returns a Gin middleware function for logging
// HTTP requests, including duration and response status.
func ginLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := ginContextLogger(c)
		c.Next()
		latency := time.Since(start)

		var errs []error
		for _, e := range c.Errors.ByType(gin.ErrorTypePrivate) {
			errs = append(errs, *e)
		}
		if len(errs) > 0 {
			requestLogger.Error(
				fmt.Sprintf(
					"%s %s finished with errors",
					c.Request.Method,
					c.Request.URL,
				),
				"duration", latency,
				"errors", errs,
				slog.Group(
					"response",
					"status_code", c.Writer.Status(),
					"body_size", c.Writer.Size(),
				),
			)
		} else {
			requestLogger.Info(
				fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL),
				"duration", latency,
				slog.Group(
					"response",
					"status_code", c.Writer.Status(),
					"body_size", c.Writer.Size(),
				),
			)
		}
	}
}

// metricMiddleware counts requests per method and path.
func metricMiddleware(a *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Next()

		a.requestMetricsMu.Lock()
		defer a.requestMetricsMu.Unlock()

		key := fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path)
		a.requestMetrics[key]++
	}
}

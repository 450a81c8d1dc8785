package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"commerce-agent/internal/catalog"
	"commerce-agent/internal/errs"
	"commerce-agent/internal/models"
	"commerce-agent/internal/service"
	"commerce-agent/internal/stream"
	"commerce-agent/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Reloader re-reads a catalog snapshot
type Reloader interface {
	Reload() (int, error)
}

// ReadinessCheck reports whether a dependency is usable
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	chat       *service.ChatService
	orders     *service.OrderService
	catalog    *catalog.Resolver
	reloader   Reloader
	tokenDelay time.Duration
	checks     map[string]ReadinessCheck
	logger     *zap.Logger
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithReloader enables the catalog reload endpoint
func WithReloader(r Reloader) HandlerOption {
	return func(h *Handler) { h.reloader = r }
}

// WithTokenDelay sets the pause between streamed words
func WithTokenDelay(d time.Duration) HandlerOption {
	return func(h *Handler) { h.tokenDelay = d }
}

// WithReadinessCheck adds a named dependency check to /ready
func WithReadinessCheck(name string, check ReadinessCheck) HandlerOption {
	return func(h *Handler) { h.checks[name] = check }
}

// NewHandler creates a new HTTP handler
func NewHandler(chat *service.ChatService, orders *service.OrderService, resolver *catalog.Resolver, opts ...HandlerOption) *Handler {
	h := &Handler{
		chat:    chat,
		orders:  orders,
		catalog: resolver,
		checks:  make(map[string]ReadinessCheck),
		logger:  util.GetLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/chat", h.chatStream)
		api.GET("/catalog/search", h.searchCatalog)
		api.POST("/orders", h.createOrder)
		api.GET("/orders", h.listOrders)
		api.GET("/status", h.status)
		api.POST("/admin/reload-catalog", h.reloadCatalog)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck runs every registered dependency check
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// chatStream answers one utterance as a text/event-stream
func (h *Handler) chatStream(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing prompt"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	em := stream.NewEmitter(c.Writer, h.tokenDelay)
	if err := h.chat.Handle(c.Request.Context(), req, em); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn("Chat request ended with error",
			zap.String("client_id", req.ClientID),
			zap.Error(err))
	}
}

// searchCatalog handles catalog search
func (h *Handler) searchCatalog(c *gin.Context) {
	q := strings.ToLower(c.Query("q"))

	items, err := h.catalog.Search(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	if items == nil {
		items = []models.CatalogItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// createOrder handles direct order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	record, err := h.orders.CreateDirect(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, record)
}

// listOrders returns all orders in placement order
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list orders",
			"details": err.Error(),
		})
		return
	}
	if orders == nil {
		orders = []models.OrderRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"backend": h.chat.LLMBackend(),
		"catalog": h.chat.CatalogBackend(),
	})
}

// reloadCatalog re-reads the local catalog file
func (h *Handler) reloadCatalog(c *gin.Context) {
	if h.reloader == nil {
		c.JSON(http.StatusConflict, gin.H{
			"ok":    false,
			"error": "catalog reload requires the local catalog",
		})
		return
	}

	count, err := h.reloader.Reload()
	if err != nil {
		h.logger.Error("Catalog reload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"ok":      false,
			"error":   "Failed to reload catalog",
			"details": err.Error(),
		})
		return
	}

	h.logger.Info("Catalog reloaded", zap.Int("count", count))
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": count})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

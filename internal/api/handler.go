package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orders  *service.OrderService
	carts   *service.CartService
	catalog *service.CatalogService
	tokens  TokenValidator
	checks  map[string]Pinger
}

// NewHandler creates a new HTTP handler. checks are pinged by /ready.
func NewHandler(
	orders *service.OrderService,
	carts *service.CartService,
	catalog *service.CatalogService,
	tokens TokenValidator,
	checks map[string]Pinger,
) *Handler {
	return &Handler{
		orders:  orders,
		carts:   carts,
		catalog: catalog,
		tokens:  tokens,
		checks:  checks,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
	}

	customer := v1.Group("", authMiddleware(h.tokens))
	{
		customer.GET("/cart", h.getCart)
		customer.POST("/cart/items", h.addCartItem)
		customer.PUT("/cart/items/:productId", h.updateCartItem)
		customer.DELETE("/cart/items/:productId", h.removeCartItem)
		customer.DELETE("/cart", h.clearCart)

		customer.POST("/orders", h.createOrder)
		customer.GET("/orders", h.listMyOrders)
		customer.GET("/orders/:id", h.getMyOrder)
		customer.POST("/orders/:id/cancel", h.cancelMyOrder)
	}

	admin := v1.Group("/admin", authMiddleware(h.tokens), requireAdmin())
	{
		admin.GET("/orders", h.listOrders)
		admin.GET("/orders/stats", h.orderStats)
		admin.GET("/orders/:id", h.getOrder)
		admin.POST("/orders/:id/status", h.updateOrderStatus)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
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

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		badRequest(c, "Invalid "+name, nil)
		return 0, false
	}
	return id, true
}

// parsePaging reads optional page and limit query parameters; absent values are 0
func parsePaging(c *gin.Context) (page, limit int, ok bool) {
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &page}, {"limit", &limit}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "Invalid "+p.name, err)
			return 0, 0, false
		}
		*p.dst = v
	}
	return page, limit, true
}

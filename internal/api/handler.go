package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"dealer-service/internal/allocation"
	"dealer-service/internal/backend"
	"dealer-service/internal/lifecycle"
	"dealer-service/internal/models"
	"dealer-service/internal/service"
	"dealer-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the use cases the API exposes
type Services struct {
	Quotations   *service.QuotationService
	AgencyOrders *service.AgencyOrderService
	Orders       *service.OrderService
	Promotions   *service.PromotionService
	Inventory    *service.InventoryService
	Journal      *service.JournalService
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	checks map[string]Pinger
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, checks map[string]Pinger) *Handler {
	return &Handler{
		svc:    svc,
		checks: checks,
		logger: util.ComponentLogger("api"),
	}
}

var registerOnce sync.Once

// registerValidators adds the customer_class binding tag
func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("customer_class", func(fl validator.FieldLevel) bool {
				return models.IsKnownCustomerClass(fl.Field().String())
			})
		}
	})
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	registerValidators()

	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/pricing/quote", h.quote)

		v1.GET("/quotations/agency/:agencyId", h.listQuotationsByAgency)
		v1.GET("/quotations/created-by/:userId", h.listQuotationsByCreator)
		v1.GET("/quotations/:id", h.getQuotation)
		v1.POST("/quotations", h.createQuotation)
		v1.DELETE("/quotations/:id", h.deleteQuotation)
		v1.POST("/quotations/:id/approve", h.approveQuotation)
		v1.POST("/quotations/:id/reject", h.rejectQuotation)
		v1.POST("/quotations/:id/convert", h.convertQuotation)
		v1.POST("/quotations/:id/expire", h.expireQuotation)

		v1.GET("/agency-orders/agency/:agencyId", h.listAgencyOrders)
		v1.GET("/agency-orders/:id", h.getAgencyOrder)
		v1.GET("/agency-orders/:id/allocation-candidates", h.allocationCandidates)
		v1.POST("/agency-orders/:id/confirm", h.confirmAgencyOrder)
		v1.POST("/agency-orders/:id/allocate", h.allocateAgencyOrder)
		v1.POST("/agency-orders/:id/receive", h.receiveAgencyOrder)
		v1.POST("/agency-orders/:id/cancel", h.cancelAgencyOrder)

		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/payments", h.listPayments)
		v1.POST("/orders/:id/contract", h.signContract)
		v1.POST("/orders/:id/payments", h.recordPayment)
		v1.POST("/orders/:id/delivery", h.recordDelivery)
		v1.POST("/orders/:id/complete", h.completeDelivery)
		v1.POST("/orders/:id/cancel", h.cancelOrder)

		v1.GET("/promotions", h.listPromotions)
		v1.POST("/promotions", h.createPromotion)
		v1.PUT("/promotions/:id", h.updatePromotion)

		v1.GET("/inventory/central", h.listCentralInventory)
		v1.POST("/inventory/central", h.addCentralInventory)

		v1.GET("/transitions/:entity/:id", h.listTransitions)
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
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
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

// pathID parses a numeric path parameter, answering 400 if it is not one
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
		})
		return 0, false
	}
	return id, true
}

// actor is the staff member performing the request, 0 if unknown
func actor(c *gin.Context) int64 {
	id, _ := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	return id
}

// bind decodes the JSON body, answering 400 on failure
func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// statusFor maps an error to the HTTP status and message the SPA shows
func statusFor(err error) (int, string) {
	var (
		partial  *allocation.PartialAllocationError
		upstream *backend.StatusError
		invalid  validator.ValidationErrors
		urlErr   *url.Error
	)
	switch {
	case errors.As(err, &partial):
		return http.StatusBadGateway, "Allocation partially completed"
	case errors.Is(err, models.ErrValidation), errors.As(err, &invalid):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, service.ErrBusy):
		return http.StatusConflict, "Resource is being modified"
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusConflict, "Invalid status transition"
	case errors.Is(err, allocation.ErrInsufficientStock),
		errors.Is(err, allocation.ErrSelectionMismatch),
		errors.Is(err, service.ErrPreconditionFailed):
		return http.StatusUnprocessableEntity, "Business rule violated"
	case errors.As(err, &upstream), errors.As(err, &urlErr):
		return http.StatusBadGateway, "Upstream service failed"
	}
	return http.StatusInternalServerError, "Internal error"
}

// writeError answers with the mapped status and logs server-side failures
func (h *Handler) writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg,
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	body := gin.H{
		"error":   msg,
		"details": err.Error(),
	}
	var partial *allocation.PartialAllocationError
	if errors.As(err, &partial) {
		body["completed"] = partial.Completed
		body["failed"] = partial.Failed
	}
	c.JSON(status, body)
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

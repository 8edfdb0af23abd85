package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"prolist/internal/service"
	"prolist/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	catalog    *service.CatalogService
	orders     *service.OrderService
	auctions   *service.AuctionService
	vendors    *service.VendorService
	dispatcher *service.Dispatcher
}

// NewHandler creates a new HTTP handler
func NewHandler(
	catalog *service.CatalogService,
	orders *service.OrderService,
	auctions *service.AuctionService,
	vendors *service.VendorService,
	dispatcher *service.Dispatcher,
) *Handler {
	return &Handler{
		catalog:    catalog,
		orders:     orders,
		auctions:   auctions,
		vendors:    vendors,
		dispatcher: dispatcher,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/products", h.createProduct)
		v1.GET("/products/:id", h.getProduct)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/capture", h.capturePayment)
		v1.PATCH("/orders/:id/status", h.updateOrderStatus)
		v1.PATCH("/orders/:id/confirm", h.confirmReceipt)
		v1.PATCH("/orders/:id/release-funds", h.releaseFunds)
		v1.POST("/orders/:id/refund", h.refundOrder)

		v1.POST("/auctions", h.createAuction)
		v1.GET("/auctions/:id", h.getAuction)
		v1.GET("/auctions/:id/bids", h.listBids)
		v1.POST("/auctions/:id/bids", h.placeBid)
		v1.PATCH("/auctions/:id/cancel", h.cancelAuction)

		v1.POST("/vendor-applications", h.submitApplication)
		v1.PATCH("/vendor-applications/:id/review", h.reviewApplication)

		v1.GET("/users/:id/orders", h.listBuyerOrders)
		v1.GET("/users/:id/notifications", h.listNotifications)
		v1.PATCH("/notifications/:id/read", h.markNotificationRead)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) capturePayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.CapturePayment(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type updateOrderStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=delivered"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	actorID, ok := actorID(c)
	if !ok {
		return
	}

	var req updateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.orders.MarkDelivered(c.Request.Context(), id, actorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type confirmReceiptRequest struct {
	ProofRef string `json:"proof_ref" binding:"required"`
}

func (h *Handler) confirmReceipt(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	actorID, ok := actorID(c)
	if !ok {
		return
	}

	var req confirmReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.orders.ConfirmReceipt(c.Request.Context(), id, actorID, req.ProofRef)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) releaseFunds(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	actorID, ok := actorID(c)
	if !ok {
		return
	}

	order, err := h.orders.ReleaseFunds(c.Request.Context(), id, actorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) refundOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	actorID, ok := actorID(c)
	if !ok {
		return
	}

	order, err := h.orders.Refund(c.Request.Context(), id, actorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) createAuction(c *gin.Context) {
	var req service.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	auction, err := h.auctions.CreateAuction(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, auction)
}

func (h *Handler) getAuction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	auction, err := h.auctions.GetAuction(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, auction)
}

func (h *Handler) listBids(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	bids, err := h.auctions.ListBids(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bids": bids})
}

type placeBidRequest struct {
	BidderID int64 `json:"bidder_id" binding:"required"`
	Amount   int64 `json:"amount" binding:"required"`
}

func (h *Handler) placeBid(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req placeBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	bid, err := h.auctions.PlaceBid(c.Request.Context(), id, req.BidderID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bid)
}

func (h *Handler) cancelAuction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	actorID, ok := actorID(c)
	if !ok {
		return
	}

	auction, err := h.auctions.CancelAuction(c.Request.Context(), id, actorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, auction)
}

func (h *Handler) submitApplication(c *gin.Context) {
	var req service.SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	app, err := h.vendors.SubmitApplication(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

type reviewApplicationRequest struct {
	Decision string `json:"decision" binding:"required"`
}

func (h *Handler) reviewApplication(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	actorID, ok := actorID(c)
	if !ok {
		return
	}

	var req reviewApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	app, err := h.vendors.ReviewApplication(c.Request.Context(), id, actorID, req.Decision)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *Handler) listBuyerOrders(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	orders, err := h.orders.ListBuyerOrders(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) listNotifications(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	notifications, err := h.dispatcher.ListNotifications(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.dispatcher.MarkRead(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

// pathID parses a numeric path parameter, responding 400 on failure.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "validation_error",
			"error": "invalid " + name + " parameter",
		})
		return 0, false
	}
	return id, true
}

// actorID reads the authenticated actor from the X-Actor-ID header. Session
// handling lives upstream; the engines only need an explicit actor per call.
func actorID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.GetHeader("X-Actor-ID"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "validation_error",
			"error": "missing or invalid X-Actor-ID header",
		})
		return 0, false
	}
	return id, true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    "validation_error",
		"error":   "invalid request body",
		"details": err.Error(),
	})
}

// respondError maps engine errors onto HTTP status codes and machine
// readable codes. Transitions are never silently swallowed.
func respondError(c *gin.Context, err error) {
	var status int
	var code string

	switch {
	case errors.Is(err, service.ErrValidation):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, service.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrBidTooLow):
		status, code = http.StatusConflict, "bid_too_low"
	case errors.Is(err, service.ErrAuctionClosed):
		status, code = http.StatusConflict, "auction_closed"
	case errors.Is(err, service.ErrInvalidState):
		status, code = http.StatusConflict, "invalid_state"
	default:
		status, code = http.StatusInternalServerError, "internal_error"
	}

	c.JSON(status, gin.H{
		"code":  code,
		"error": err.Error(),
	})
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

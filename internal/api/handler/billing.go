package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/calmness_server/internal/api/middleware"
	"github.com/qs3c/calmness_server/internal/model/dto"
	"github.com/qs3c/calmness_server/internal/pkg/response"
	"github.com/qs3c/calmness_server/internal/service"
)

type BillingHandler struct {
	billingService *service.BillingService
}

func NewBillingHandler(billingService *service.BillingService) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
	}
}

// CreatePaymentMethod POST /api/v1/billing/methods
func (h *BillingHandler) CreatePaymentMethod(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreatePaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	info, err := h.billingService.CreatePaymentMethod(c.Request.Context(), userID, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Created(c, info)
}

// ListPaymentMethods GET /api/v1/billing/methods
func (h *BillingHandler) ListPaymentMethods(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	list, err := h.billingService.ListPaymentMethods(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, list)
}

// DeletePaymentMethod DELETE /api/v1/billing/methods/:id
func (h *BillingHandler) DeletePaymentMethod(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid payment method id")
		return
	}

	if err := h.billingService.DeletePaymentMethod(c.Request.Context(), userID, id); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, dto.MessageResponse{Message: "Payment method removed"})
}

// InitPayment 相同 idempotency_key 的重复请求返回同一笔支付
// POST /api/v1/billing/payments/init
func (h *BillingHandler) InitPayment(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.InitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	info, err := h.billingService.InitPayment(c.Request.Context(), userID, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, info)
}

// CreateSubscription POST /api/v1/billing/subscriptions
func (h *BillingHandler) CreateSubscription(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	info, err := h.billingService.CreateSubscription(c.Request.Context(), userID, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Created(c, info)
}

// CreateAdminConfig 需要 X-Admin-Key
// POST /api/v1/billing/admin/config
func (h *BillingHandler) CreateAdminConfig(c *gin.Context) {
	var req dto.AdminConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	info, err := h.billingService.CreateAdminConfig(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Created(c, info)
}

// GetAdminConfig 解密返回配置值，需要 X-Admin-Key
// GET /api/v1/billing/admin/config/:key
func (h *BillingHandler) GetAdminConfig(c *gin.Context) {
	key := c.Param("key")
	value, err := h.billingService.AdminConfigValue(c.Request.Context(), key)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, dto.AdminConfigValue{Key: key, Value: value})
}

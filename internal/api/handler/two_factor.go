package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/calmness_server/internal/api/middleware"
	"github.com/qs3c/calmness_server/internal/model/dto"
	"github.com/qs3c/calmness_server/internal/pkg/response"
	"github.com/qs3c/calmness_server/internal/service"
)

// TwoFactorHandler 2FA 开关与短信/邮件验证码，均需登录
type TwoFactorHandler struct {
	twoFactorService *service.TwoFactorService
}

func NewTwoFactorHandler(twoFactorService *service.TwoFactorService) *TwoFactorHandler {
	return &TwoFactorHandler{
		twoFactorService: twoFactorService,
	}
}

// Setup POST /api/v1/auth/2fa/setup
func (h *TwoFactorHandler) Setup(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	resp, err := h.twoFactorService.Setup(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, resp)
}

// Verify POST /api/v1/auth/2fa/verify
func (h *TwoFactorHandler) Verify(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.TwoFactorCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.twoFactorService.VerifySetup(c.Request.Context(), userID, req.Code); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, dto.MessageResponse{Message: "Two-factor authentication enabled"})
}

// Disable POST /api/v1/auth/2fa/disable
func (h *TwoFactorHandler) Disable(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.TwoFactorCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.twoFactorService.Disable(c.Request.Context(), userID, req.Code); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, dto.MessageResponse{Message: "Two-factor authentication disabled"})
}

// SendCode POST /api/v1/auth/2fa/code/send
func (h *TwoFactorHandler) SendCode(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.twoFactorService.SendCode(c.Request.Context(), userID, req.CodeType, req.Destination); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, dto.MessageResponse{Message: "Code sent"})
}

// VerifyCode POST /api/v1/auth/2fa/code/verify
func (h *TwoFactorHandler) VerifyCode(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.twoFactorService.VerifyCode(c.Request.Context(), userID, req.CodeType, req.Code); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, dto.MessageResponse{Message: "Code verified"})
}

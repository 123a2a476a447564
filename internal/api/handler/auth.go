package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/calmness_server/internal/api/middleware"
	"github.com/qs3c/calmness_server/internal/model/dto"
	"github.com/qs3c/calmness_server/internal/pkg/response"
	"github.com/qs3c/calmness_server/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Register 用户注册
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Created(c, service.ToUserInfo(user))
}

// VerifyEmail 验证邮箱
// POST /api/v1/auth/verify-email
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req dto.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	user, err := h.authService.VerifyEmail(c.Request.Context(), req.Token)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "Email verified", service.ToUserInfo(user))
}

// Login 用户登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, resp)
}

// Refresh POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, resp)
}

// OAuthURL 获取第三方授权地址
// GET /api/v1/auth/oauth/:provider/url?redirect_uri=
func (h *AuthHandler) OAuthURL(c *gin.Context) {
	resp, err := h.authService.OAuthURL(c.Request.Context(), c.Param("provider"), c.Query("redirect_uri"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, resp)
}

// OAuthLogin 用第三方回调的 code 登录
// POST /api/v1/auth/oauth/login
func (h *AuthHandler) OAuthLogin(c *gin.Context) {
	var req dto.OAuthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.OAuthLogin(c.Request.Context(), &req, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, resp)
}

// RequestPasswordReset POST /api/v1/auth/password-reset
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req dto.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	msg, err := h.authService.RequestPasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, dto.MessageResponse{Message: msg})
}

// ConfirmPasswordReset POST /api/v1/auth/password-reset/confirm
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req dto.PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.authService.ConfirmPasswordReset(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, dto.MessageResponse{Message: "Password has been reset"})
}

// ChangePassword POST /api/v1/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, dto.MessageResponse{Message: "Password changed"})
}

// Logout 不带 session_token 时失效该用户全部会话
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.ParamError(c, err.Error())
		return
	}

	var err error
	if req.SessionToken != "" {
		err = h.authService.LogoutSession(c.Request.Context(), userID, req.SessionToken)
	} else {
		err = h.authService.Logout(c.Request.Context(), userID)
	}
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, dto.MessageResponse{Message: "Logged out"})
}

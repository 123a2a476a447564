package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/calmness_server/internal/api/middleware"
	"github.com/qs3c/calmness_server/internal/pkg/response"
	"github.com/qs3c/calmness_server/internal/service"
)

type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// Me 获取当前用户信息
// GET /api/v1/auth/me
func (h *UserHandler) Me(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	info, err := h.userService.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, info)
}

// Dashboard 订阅与消费统计
// GET /api/v1/auth/dashboard
func (h *UserHandler) Dashboard(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	dash, err := h.userService.Dashboard(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, dash)
}

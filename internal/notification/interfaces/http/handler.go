// Package http 通知记录的后台查询接口
package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/storefront/internal/notification/application"
	"github.com/wyfcoding/storefront/internal/notification/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/pkg/response"
)

// NotificationHandler 通知记录处理器
type NotificationHandler struct {
	notifier *application.Notifier
}

// NewNotificationHandler 创建处理器
func NewNotificationHandler(notifier *application.Notifier) *NotificationHandler {
	return &NotificationHandler{notifier: notifier}
}

// RegisterAdminRoutes 注册后台路由
func (h *NotificationHandler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/notifications", h.ListRecent)
	r.GET("/orders/:id/notifications", h.ListByOrder)
}

// ListRecent 最近的通知，?status=FAILED&limit=50
func (h *NotificationHandler) ListRecent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	items, err := h.notifier.Recent(c.Request.Context(), domain.Status(c.Query("status")), limit)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to list notifications", "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "failed to list notifications", "")
		return
	}
	response.Success(c, items)
}

// ListByOrder 订单的通知记录
func (h *NotificationHandler) ListByOrder(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid order id", "")
		return
	}
	items, err := h.notifier.ForOrder(c.Request.Context(), uint(id))
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to list order notifications", "order_id", id, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "failed to list notifications", "")
		return
	}
	response.Success(c, items)
}

// Package http 下载兑换接口
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/storefront/internal/download/application"
	"github.com/wyfcoding/storefront/internal/download/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/middleware"
	"github.com/wyfcoding/pkg/response"
)

// DownloadHandler 下载处理器
type DownloadHandler struct {
	svc *application.DownloadService
}

// NewDownloadHandler 创建下载处理器
func NewDownloadHandler(svc *application.DownloadService) *DownloadHandler {
	return &DownloadHandler{svc: svc}
}

// RegisterRoutes 注册路由，extra 为附加中间件（如限流）
func (h *DownloadHandler) RegisterRoutes(r *gin.RouterGroup, extra ...gin.HandlerFunc) {
	handlers := append([]gin.HandlerFunc{middleware.RequireUser()}, extra...)
	handlers = append(handlers, h.Redeem)
	r.GET("/downloads/:token", handlers...)
}

// Redeem 兑换并交付文件或重定向到外部链接
func (h *DownloadHandler) Redeem(c *gin.Context) {
	p, _ := middleware.CurrentUser(c)
	delivery, err := h.svc.Redeem(c.Request.Context(), c.Param("token"), p.UserID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrGrantNotFound), errors.Is(err, domain.ErrFileMissing):
			response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
		case errors.Is(err, domain.ErrGrantExpired):
			response.ErrorWithStatus(c, http.StatusGone, err.Error(), "")
		case errors.Is(err, domain.ErrGrantExhausted):
			response.ErrorWithStatus(c, http.StatusForbidden, err.Error(), "")
		default:
			logger.Error(c.Request.Context(), "Download redemption failed", "error", err)
			response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", "")
		}
		return
	}

	if delivery.FilePath != "" {
		c.FileAttachment(delivery.FilePath, delivery.FileName)
		return
	}
	c.Redirect(http.StatusFound, delivery.URL)
}

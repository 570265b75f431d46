// Package http 站点内容 HTTP 接口
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/storefront/internal/content/application"
	"github.com/wyfcoding/pkg/response"
)

// ContentHandler 内容处理器
type ContentHandler struct {
	svc *application.ContentService
}

// NewContentHandler 创建内容处理器
func NewContentHandler(svc *application.ContentService) *ContentHandler {
	return &ContentHandler{svc: svc}
}

// RegisterRoutes 注册路由
func (h *ContentHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/company", h.Company)
}

// Company 公司信息
func (h *ContentHandler) Company(c *gin.Context) {
	response.Success(c, h.svc.Company())
}

// Package http 会员订阅 HTTP 接口
package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/storefront/internal/membership/application"
	"github.com/wyfcoding/storefront/internal/membership/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/middleware"
	"github.com/wyfcoding/pkg/response"
)

// MembershipHandler 会员处理器
type MembershipHandler struct {
	svc *application.MembershipService
}

// NewMembershipHandler 创建会员处理器
func NewMembershipHandler(svc *application.MembershipService) *MembershipHandler {
	return &MembershipHandler{svc: svc}
}

// RegisterRoutes 注册前台路由，套餐列表无需登录
func (h *MembershipHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/membership/plans", h.Plans)

	g := r.Group("/membership", middleware.RequireUser())
	{
		g.GET("", h.Get)
		g.POST("/subscribe", h.Subscribe)
		g.POST("/cancel", h.Cancel)
		g.POST("/resume", h.Resume)
		g.POST("/switch", h.Switch)
	}
}

// RegisterAdminRoutes 注册后台路由
func (h *MembershipHandler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/membership/billing-cycle", h.BillingCycle)
}

// Plans 套餐与价格
func (h *MembershipHandler) Plans(c *gin.Context) {
	response.Success(c, h.svc.Plans())
}

// Get 当前用户会员状态
func (h *MembershipHandler) Get(c *gin.Context) {
	p, _ := middleware.CurrentUser(c)
	view, err := h.svc.Get(c.Request.Context(), p.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, view)
}

type levelRequest struct {
	Level string `json:"level" binding:"required"`
}

// Subscribe 开通会员
func (h *MembershipHandler) Subscribe(c *gin.Context) {
	var req levelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	p, _ := middleware.CurrentUser(c)
	level := domain.Level(req.Level)
	view, err := h.svc.Subscribe(c.Request.Context(), p.UserID, level)
	if err != nil {
		fail(c, err)
		return
	}
	msg := fmt.Sprintf("Successfully subscribed to %s plan (%s)!", strings.ToUpper(string(level)), priceLabel(view.Plans, level))
	response.Success(c, gin.H{"membership": view, "message": msg})
}

// Cancel 取消自动续费
func (h *MembershipHandler) Cancel(c *gin.Context) {
	p, _ := middleware.CurrentUser(c)
	view, err := h.svc.Cancel(c.Request.Context(), p.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"membership": view, "message": "Auto-renewal has been cancelled. Your membership stays active until the period ends."})
}

// Resume 恢复自动续费
func (h *MembershipHandler) Resume(c *gin.Context) {
	p, _ := middleware.CurrentUser(c)
	view, err := h.svc.Resume(c.Request.Context(), p.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"membership": view, "message": "Auto-renewal has been resumed. Your membership will be billed automatically."})
}

// Switch 切换等级，立即生效
func (h *MembershipHandler) Switch(c *gin.Context) {
	var req levelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	p, _ := middleware.CurrentUser(c)
	view, err := h.svc.Switch(c.Request.Context(), p.UserID, domain.Level(req.Level))
	if err != nil {
		fail(c, err)
		return
	}
	msg := fmt.Sprintf("Membership plan switched to %s. Your membership will change immediately.", strings.ToUpper(req.Level))
	response.Success(c, gin.H{"membership": view, "message": msg})
}

type billingRequest struct {
	UserID *uint `json:"user_id"`
}

// BillingCycle 手动触发续费，body 为空时处理全部到期档案
func (h *MembershipHandler) BillingCycle(c *gin.Context) {
	var req billingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
			return
		}
	}
	report, err := h.svc.BillingCycle(c.Request.Context(), req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, report)
}

func priceLabel(plans []application.Plan, level domain.Level) string {
	for _, p := range plans {
		if p.Level == level {
			return p.Label
		}
	}
	return ""
}

func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidLevel):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, domain.ErrNotActive):
		response.ErrorWithStatus(c, http.StatusConflict, err.Error(), "")
	default:
		logger.Error(c.Request.Context(), "Membership request failed", "path", c.FullPath(), "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", "")
	}
}

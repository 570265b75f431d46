// Package http 购物车 HTTP 接口。已登录用户使用账户购物车，匿名访客使用会话购物车。
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/storefront/internal/cart/application"
	"github.com/wyfcoding/storefront/internal/cart/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/middleware"
	"github.com/wyfcoding/pkg/response"
)

// CartHandler 购物车处理器
type CartHandler struct {
	svc *application.CartService
}

// NewCartHandler 创建购物车处理器
func NewCartHandler(svc *application.CartService) *CartHandler {
	return &CartHandler{svc: svc}
}

// RegisterRoutes 注册路由，需要在 Authenticate 与 Session 中间件之后
func (h *CartHandler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/cart")
	{
		g.GET("", h.Get)
		g.GET("/count", h.Count)
		g.POST("/items", h.AddItem)
		g.PUT("/items/:product_id", h.UpdateItem)
		g.DELETE("/items/:product_id", h.RemoveItem)
		g.POST("/merge", middleware.RequireUser(), h.Merge)
	}
}

// Owner 根据当前请求确定购物车归属
func Owner(c *gin.Context) domain.Owner {
	if p, ok := middleware.CurrentUser(c); ok {
		return domain.ForUser(p.UserID)
	}
	return domain.ForSession(middleware.SessionID(c))
}

// Get 购物车视图
func (h *CartHandler) Get(c *gin.Context) {
	h.render(c)
}

// Count 购物车角标数量
func (h *CartHandler) Count(c *gin.Context) {
	n, err := h.svc.Count(c.Request.Context(), Owner(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"count": n})
}

type addRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity"`
	Override  bool `json:"override"`
}

// AddItem 加购，数量缺省为 1
func (h *CartHandler) AddItem(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if req.Quantity == 0 && !req.Override {
		req.Quantity = 1
	}
	if err := h.svc.Add(c.Request.Context(), Owner(c), req.ProductID, req.Quantity, req.Override); err != nil {
		fail(c, err)
		return
	}
	h.render(c)
}

type updateRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateItem 修改数量，小于 1 时删除该行
func (h *CartHandler) UpdateItem(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := h.svc.Update(c.Request.Context(), Owner(c), productID, req.Quantity); err != nil {
		fail(c, err)
		return
	}
	h.render(c)
}

// RemoveItem 删除一行
func (h *CartHandler) RemoveItem(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	if err := h.svc.Remove(c.Request.Context(), Owner(c), productID); err != nil {
		fail(c, err)
		return
	}
	h.render(c)
}

// Merge 将当前会话购物车并入账户购物车
func (h *CartHandler) Merge(c *gin.Context) {
	p, _ := middleware.CurrentUser(c)
	merged, err := h.svc.Merge(c.Request.Context(), middleware.SessionID(c), p.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	view, err := h.svc.List(c.Request.Context(), domain.ForUser(p.UserID))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"merged": merged, "cart": view})
}

func (h *CartHandler) render(c *gin.Context) {
	view, err := h.svc.List(c.Request.Context(), Owner(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, view)
}

func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNoOwner):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
	default:
		logger.Error(c.Request.Context(), "Cart operation failed", "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", "")
	}
}

func productIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("product_id"), 10, 64)
	if err != nil || id == 0 {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid product id", "")
		return 0, false
	}
	return uint(id), true
}

package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/storefront/internal/inventory/application"
	"github.com/wyfcoding/storefront/internal/inventory/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/middleware"
	"github.com/wyfcoding/pkg/response"
)

// InventoryHandler 后台库存管理
type InventoryHandler struct {
	ledger *application.Ledger
}

// NewInventoryHandler 创建库存处理器
func NewInventoryHandler(ledger *application.Ledger) *InventoryHandler {
	return &InventoryHandler{ledger: ledger}
}

// RegisterAdminRoutes 注册后台路由，调用方负责管理员鉴权
func (h *InventoryHandler) RegisterAdminRoutes(admin *gin.RouterGroup) {
	g := admin.Group("/inventory/:product_id")
	{
		g.POST("/restock", h.Restock)
		g.POST("/adjust", h.Adjust)
		g.GET("/history", h.History)
		g.GET("/reconcile", h.Reconcile)
	}
}

type restockRequest struct {
	Quantity int    `json:"quantity" binding:"required,gt=0"`
	Note     string `json:"note"`
}

type adjustRequest struct {
	Delta      int    `json:"delta" binding:"required"`
	ChangeType string `json:"change_type"`
	Note       string `json:"note"`
}

// Restock 入库
func (h *InventoryHandler) Restock(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	entry, err := h.ledger.Restock(c.Request.Context(), productID, req.Quantity, actor(c), req.Note)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusCreated, "created", entry)
}

// Adjust 手工调整，类型默认为 ADJUST，也可记录 REFUND
func (h *InventoryHandler) Adjust(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	changeType := domain.ChangeAdjust
	if req.ChangeType != "" {
		changeType = domain.ChangeType(req.ChangeType)
	}
	if changeType != domain.ChangeAdjust && changeType != domain.ChangeRefund {
		response.ErrorWithStatus(c, http.StatusBadRequest, "change_type must be ADJUST or REFUND", "")
		return
	}

	entry, err := h.ledger.Adjust(c.Request.Context(), application.AdjustCommand{
		ProductID:  productID,
		Delta:      req.Delta,
		ChangeType: changeType,
		Actor:      actor(c),
		Note:       req.Note,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusCreated, "created", entry)
}

// History 库存流水
func (h *InventoryHandler) History(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.ledger.History(c.Request.Context(), productID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, entries)
}

// Reconcile 流水核对
func (h *InventoryHandler) Reconcile(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	rec, err := h.ledger.Reconcile(c.Request.Context(), productID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, rec)
}

func (h *InventoryHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrInsufficientStock):
		response.ErrorWithStatus(c, http.StatusConflict, err.Error(), "")
	case errors.Is(err, domain.ErrNotPhysical), errors.Is(err, domain.ErrInvalidQuantity):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
	default:
		logger.Error(c.Request.Context(), "Inventory operation failed", "error", err)
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

func actor(c *gin.Context) string {
	if p, ok := middleware.CurrentUser(c); ok {
		if p.Email != "" {
			return p.Email
		}
		return strconv.FormatUint(uint64(p.UserID), 10)
	}
	return ""
}

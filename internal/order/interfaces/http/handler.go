// Package http 结算与订单 HTTP 接口
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/storefront/internal/order/application"
	"github.com/wyfcoding/storefront/internal/order/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/middleware"
	"github.com/wyfcoding/pkg/response"
)

// OrderHandler HTTP 处理器
// 负责结算、我的订单与后台订单管理
type OrderHandler struct {
	checkout *application.CheckoutService
	orders   *application.OrderService
}

// NewOrderHandler 创建 HTTP 处理器实例
func NewOrderHandler(checkout *application.CheckoutService, orders *application.OrderService) *OrderHandler {
	return &OrderHandler{checkout: checkout, orders: orders}
}

// RegisterRoutes 注册前台路由，placeMiddleware 作用于下单接口（如限流）
func (h *OrderHandler) RegisterRoutes(r *gin.RouterGroup, placeMiddleware ...gin.HandlerFunc) {
	checkout := r.Group("/checkout", middleware.RequireUser())
	{
		checkout.GET("", h.Preview)
		checkout.POST("", append(placeMiddleware, h.Place)...)
	}

	orders := r.Group("/orders", middleware.RequireUser())
	{
		orders.GET("", h.ListMine)
		orders.GET("/:id", h.GetMine)
	}
}

// RegisterAdminRoutes 注册后台路由
func (h *OrderHandler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/orders", h.AdminList)
	r.GET("/orders/:id", h.AdminGet)
	r.PATCH("/orders/:id", h.AdminUpdate)
	r.GET("/exports/orders.csv", h.ExportOrders)
	r.GET("/exports/order-items.csv", h.ExportItems)
}

// Preview 结算预览，?fulfillment=pickup 按自提计算运费
func (h *OrderHandler) Preview(c *gin.Context) {
	p, _ := middleware.CurrentUser(c)
	preview, err := h.checkout.Preview(c.Request.Context(), p.UserID, c.Query("fulfillment") == string(domain.FulfillmentPickup))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, preview)
}

type placeRequest struct {
	Fulfillment      string              `json:"fulfillment"`
	Shipping         domain.ShippingForm `json:"shipping"`
	PickupLocationID uint                `json:"pickup_location_id"`
}

// Place 下单
func (h *OrderHandler) Place(c *gin.Context) {
	var req placeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	p, _ := middleware.CurrentUser(c)
	order, err := h.checkout.Place(c.Request.Context(), application.PlaceCommand{
		UserID:           p.UserID,
		Email:            p.Email,
		CustomerName:     p.Name,
		Fulfillment:      domain.Fulfillment(req.Fulfillment),
		Shipping:         req.Shipping,
		PickupLocationID: req.PickupLocationID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusCreated, "created", gin.H{"order_id": order.ID})
}

// ListMine 我的订单
func (h *OrderHandler) ListMine(c *gin.Context) {
	p, _ := middleware.CurrentUser(c)
	limit, offset := paging(c)
	orders, total, err := h.orders.ListMine(c.Request.Context(), p.UserID, limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"items": orders, "total": total})
}

// GetMine 我的订单详情
func (h *OrderHandler) GetMine(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	p, _ := middleware.CurrentUser(c)
	detail, err := h.orders.GetMine(c.Request.Context(), p.UserID, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, detail)
}

// AdminList 后台订单列表，?status=paid&page=1&size=20
func (h *OrderHandler) AdminList(c *gin.Context) {
	limit, offset := paging(c)
	orders, total, err := h.orders.AdminList(c.Request.Context(), domain.Filter{
		Status: domain.Status(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"items": orders, "total": total})
}

// AdminGet 后台订单详情
func (h *OrderHandler) AdminGet(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	detail, err := h.orders.AdminGet(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, detail)
}

type updateRequest struct {
	Status         *string         `json:"status"`
	Carrier        *string         `json:"carrier"`
	TrackingNumber *string         `json:"tracking_number"`
	Address        *domain.Address `json:"address"`
}

// AdminUpdate 修改订单状态与物流信息
func (h *OrderHandler) AdminUpdate(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	u := domain.Update{TrackingNumber: req.TrackingNumber, Address: req.Address}
	if req.Status != nil {
		s := domain.Status(*req.Status)
		u.Status = &s
	}
	if req.Carrier != nil {
		cr := domain.Carrier(*req.Carrier)
		u.Carrier = &cr
	}
	order, err := h.orders.UpdateOrder(c.Request.Context(), id, u)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, order)
}

// ExportOrders 导出订单 CSV
func (h *OrderHandler) ExportOrders(c *gin.Context) {
	h.export(c, "orders.csv", h.orders.ExportOrders)
}

// ExportItems 导出订单项 CSV
func (h *OrderHandler) ExportItems(c *gin.Context) {
	h.export(c, "order_items.csv", h.orders.ExportItems)
}

func (h *OrderHandler) export(c *gin.Context, filename string, write func(ctx context.Context, w io.Writer, f domain.Filter) error) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Status(http.StatusOK)
	if err := write(c.Request.Context(), c.Writer, domain.Filter{Status: domain.Status(c.Query("status"))}); err != nil {
		// 响应头已写出，只能记录
		logger.Error(c.Request.Context(), "Failed to export csv", "file", filename, "error", err)
	}
}

func (h *OrderHandler) fail(c *gin.Context, err error) {
	var (
		verr *domain.ValidationError
		cerr *domain.StockConflictError
	)
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
	case errors.As(err, &verr):
		rejectWithData(c, http.StatusUnprocessableEntity, "validation failed", gin.H{"errors": verr.Fields})
	case errors.As(err, &cerr):
		rejectWithData(c, http.StatusConflict, "insufficient stock", gin.H{"conflicts": cerr.Conflicts})
	case errors.Is(err, domain.ErrStockChanged):
		rejectWithData(c, http.StatusConflict, err.Error(), gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrOrderNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrInvalidCarrier):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
	default:
		logger.Error(c.Request.Context(), "Order request failed", "path", c.FullPath(), "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", "")
	}
}

func orderID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid order id", "")
		return 0, false
	}
	return uint(id), true
}

// paging 解析 page/size，size 上限 100
func paging(c *gin.Context) (limit, offset int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return size, (page - 1) * size
}

// rejectWithData 与 response.ErrorWithStatus 同样的信封，额外携带结构化明细（字段错误、库存冲突）
func rejectWithData(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, gin.H{
		"code":   status,
		"msg":    msg,
		"detail": "",
		"data":   data,
	})
}

// Package http 提供商品目录的 HTTP 接口。
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/storefront/internal/catalog/application"
	"github.com/wyfcoding/storefront/internal/catalog/domain"
	invdomain "github.com/wyfcoding/storefront/internal/inventory/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/middleware"
	"github.com/wyfcoding/pkg/response"
	"gorm.io/gorm"
)

// CatalogHandler 商品目录处理器
type CatalogHandler struct {
	svc *application.CatalogService
}

// NewCatalogHandler 创建商品目录处理器
func NewCatalogHandler(svc *application.CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

// RegisterRoutes 注册前台路由
func (h *CatalogHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/products", h.ListProducts)
	r.GET("/products/:id", h.GetProduct)
	r.GET("/categories", h.ListCategories)
	r.GET("/pickup-locations", h.ListPickupLocations)
}

// RegisterAdminRoutes 注册后台路由，调用方负责管理员鉴权
func (h *CatalogHandler) RegisterAdminRoutes(admin *gin.RouterGroup) {
	admin.GET("/products", h.AdminListProducts)
	admin.GET("/products/:id", h.AdminGetProduct)
	admin.POST("/products", h.CreateProduct)
	admin.PUT("/products/:id", h.UpdateProduct)
	admin.POST("/products/:id/images", h.AddImage)
	admin.POST("/categories", h.CreateCategory)
	admin.GET("/pickup-locations", h.AdminListPickupLocations)
	admin.POST("/pickup-locations", h.CreatePickupLocation)
	admin.PUT("/pickup-locations/:id", h.UpdatePickupLocation)
}

// ProductView 商品响应体
type ProductView struct {
	ID          uint              `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Price       decimal.Decimal   `json:"price"`
	Kind        domain.Kind       `json:"kind"`
	Active      bool              `json:"active"`
	Featured    bool              `json:"featured"`
	Category    *domain.Category  `json:"category,omitempty"`
	Available   int               `json:"available"`
	InStock     bool              `json:"in_stock"`
	Taxes       domain.TaxDisplay `json:"taxes"`
	MainImage   *domain.Image     `json:"main_image,omitempty"`
	Images      []domain.Image    `json:"images,omitempty"`

	Seats           *int       `json:"seats,omitempty"`
	StartsAt        *time.Time `json:"starts_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	Location        string     `json:"location,omitempty"`
	// 仅后台可见
	DigitalFile string `json:"digital_file,omitempty"`
	DigitalURL  string `json:"digital_url,omitempty"`
}

func toView(p *domain.Product, admin bool) ProductView {
	v := ProductView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Kind:        p.Kind(),
		Active:      p.Active,
		Featured:    p.Featured,
		Category:    p.Category,
		Available:   p.Capacity(),
		InStock:     p.Capacity() > 0,
		Taxes:       p.Taxes(),
		MainImage:   p.MainImage(),
		Images:      p.Images,
	}
	switch variant := p.Variant.(type) {
	case domain.Service:
		v.Seats = variant.Seats
		v.StartsAt = variant.StartsAt
		v.DurationMinutes = variant.DurationMinutes
		v.Location = variant.Location
	case domain.Digital:
		if admin {
			v.DigitalFile = variant.File
			v.DigitalURL = variant.URL
		}
	}
	return v
}

func toViews(products []*domain.Product, admin bool) []ProductView {
	out := make([]ProductView, len(products))
	for i, p := range products {
		out[i] = toView(p, admin)
	}
	return out
}

func filterFromQuery(c *gin.Context) domain.ProductFilter {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return domain.ProductFilter{
		CategorySlug: c.Query("category"),
		FeaturedOnly: c.Query("featured") == "true",
		Kind:         domain.Kind(c.Query("kind")),
		Limit:        limit,
		Offset:       offset,
	}
}

// ListProducts 前台商品列表
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	products, total, err := h.svc.ListProducts(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"items": toViews(products, false), "total": total})
}

// GetProduct 前台商品详情
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	p, err := h.svc.GetProduct(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, toView(p, false))
}

// ListCategories 分类列表
func (h *CatalogHandler) ListCategories(c *gin.Context) {
	categories, err := h.svc.ListCategories(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, categories)
}

// ListPickupLocations 启用中的自提点
func (h *CatalogHandler) ListPickupLocations(c *gin.Context) {
	locs, err := h.svc.ListPickupLocations(c.Request.Context(), true)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, locs)
}

// AdminListProducts 后台商品列表
func (h *CatalogHandler) AdminListProducts(c *gin.Context) {
	filter := filterFromQuery(c)
	filter.ActiveOnly = c.Query("active") == "true"
	products, total, err := h.svc.AdminListProducts(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"items": toViews(products, true), "total": total})
}

// AdminGetProduct 后台商品详情
func (h *CatalogHandler) AdminGetProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	p, err := h.svc.AdminGetProduct(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, toView(p, true))
}

type productRequest struct {
	Name            string          `json:"name" binding:"required"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	CategoryID      *uint           `json:"category_id"`
	Active          bool            `json:"active"`
	Featured        bool            `json:"featured"`
	GST             bool            `json:"gst"`
	PST             bool            `json:"pst"`
	Kind            string          `json:"kind" binding:"required,oneof=physical digital service"`
	Stock           int             `json:"stock"`
	DigitalFile     string          `json:"digital_file"`
	DigitalURL      string          `json:"digital_url"`
	Seats           *int            `json:"seats"`
	StartsAt        string          `json:"starts_at"`
	DurationMinutes int             `json:"duration_minutes"`
	Location        string          `json:"location"`
}

func (req *productRequest) command(c *gin.Context) (application.ProductCommand, error) {
	startsAt, err := application.ParseServiceStart(req.StartsAt)
	if err != nil {
		return application.ProductCommand{}, err
	}
	return application.ProductCommand{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		CategoryID:  req.CategoryID,
		Active:      req.Active,
		Featured:    req.Featured,
		GST:         req.GST,
		PST:         req.PST,
		Kind:        domain.Kind(req.Kind),
		Variant: domain.VariantSpec{
			Stock:           req.Stock,
			DigitalFile:     req.DigitalFile,
			DigitalURL:      req.DigitalURL,
			Seats:           req.Seats,
			StartsAt:        startsAt,
			DurationMinutes: req.DurationMinutes,
			Location:        req.Location,
		},
		Actor: actor(c),
	}, nil
}

// CreateProduct 新建商品
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	cmd, err := req.command(c)
	if err != nil {
		fail(c, err)
		return
	}
	p, err := h.svc.CreateProduct(c.Request.Context(), cmd)
	if err != nil {
		fail(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusCreated, "created", toView(p, true))
}

// UpdateProduct 修改商品
func (h *CatalogHandler) UpdateProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	cmd, err := req.command(c)
	if err != nil {
		fail(c, err)
		return
	}
	p, err := h.svc.UpdateProduct(c.Request.Context(), id, cmd)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, toView(p, true))
}

type imageRequest struct {
	URL       string `json:"url" binding:"required"`
	Alt       string `json:"alt"`
	IsMain    bool   `json:"is_main"`
	SortOrder int    `json:"sort_order"`
}

// AddImage 添加商品图片
func (h *CatalogHandler) AddImage(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	image := &domain.Image{ProductID: id, URL: req.URL, Alt: req.Alt, IsMain: req.IsMain, SortOrder: req.SortOrder}
	if err := h.svc.AddImage(c.Request.Context(), image); err != nil {
		fail(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusCreated, "created", image)
}

type categoryRequest struct {
	Name string `json:"name" binding:"required"`
	Slug string `json:"slug"`
}

// CreateCategory 新建分类
func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	category, err := h.svc.CreateCategory(c.Request.Context(), req.Name, req.Slug)
	if err != nil {
		fail(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusCreated, "created", category)
}

// AdminListPickupLocations 全部自提点
func (h *CatalogHandler) AdminListPickupLocations(c *gin.Context) {
	locs, err := h.svc.ListPickupLocations(c.Request.Context(), false)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, locs)
}

// CreatePickupLocation 新建自提点
func (h *CatalogHandler) CreatePickupLocation(c *gin.Context) {
	var loc domain.PickupLocation
	if err := c.ShouldBindJSON(&loc); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	loc.ID = 0
	if err := h.svc.SavePickupLocation(c.Request.Context(), &loc); err != nil {
		fail(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusCreated, "created", loc)
}

// UpdatePickupLocation 修改自提点
func (h *CatalogHandler) UpdatePickupLocation(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var loc domain.PickupLocation
	if err := c.ShouldBindJSON(&loc); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	loc.ID = id
	if err := h.svc.SavePickupLocation(c.Request.Context(), &loc); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, loc)
}

func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrCategoryNotFound),
		errors.Is(err, domain.ErrPickupLocationNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrInvalidProduct),
		errors.Is(err, domain.ErrInvalidCategory),
		errors.Is(err, domain.ErrInvalidPickupLocation):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, invdomain.ErrInsufficientStock), errors.Is(err, gorm.ErrDuplicatedKey):
		response.ErrorWithStatus(c, http.StatusConflict, err.Error(), "")
	default:
		logger.Error(c.Request.Context(), "Catalog operation failed", "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, "internal error", "")
	}
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid id", "")
		return 0, false
	}
	return uint(id), true
}

func actor(c *gin.Context) string {
	if p, ok := middleware.CurrentUser(c); ok {
		return p.Email
	}
	return ""
}

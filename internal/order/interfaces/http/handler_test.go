package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cartapp "github.com/wyfcoding/storefront/internal/cart/application"
	cart "github.com/wyfcoding/storefront/internal/cart/domain"
	cartmysql "github.com/wyfcoding/storefront/internal/cart/infrastructure/persistence/mysql"
	catalogapp "github.com/wyfcoding/storefront/internal/catalog/application"
	catalog "github.com/wyfcoding/storefront/internal/catalog/domain"
	catalogmysql "github.com/wyfcoding/storefront/internal/catalog/infrastructure/persistence/mysql"
	dlapp "github.com/wyfcoding/storefront/internal/download/application"
	dlmysql "github.com/wyfcoding/storefront/internal/download/infrastructure/persistence/mysql"
	"github.com/wyfcoding/storefront/internal/download/infrastructure/storage"
	invapp "github.com/wyfcoding/storefront/internal/inventory/application"
	inventory "github.com/wyfcoding/storefront/internal/inventory/domain"
	invmysql "github.com/wyfcoding/storefront/internal/inventory/infrastructure/persistence/mysql"
	notifyapp "github.com/wyfcoding/storefront/internal/notification/application"
	"github.com/wyfcoding/storefront/internal/notification/infrastructure/sender"
	"github.com/wyfcoding/storefront/internal/order/application"
	"github.com/wyfcoding/storefront/internal/order/domain"
	ordermysql "github.com/wyfcoding/storefront/internal/order/infrastructure/persistence/mysql"
	orderhttp "github.com/wyfcoding/storefront/internal/order/interfaces/http"
	"github.com/wyfcoding/storefront/pkg/db/dbtest"
	"github.com/wyfcoding/storefront/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	router   *gin.Engine
	products catalog.ProductRepository
	ledger   *invapp.Ledger
	carts    *cartapp.CartService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	models := append(catalogmysql.Models(), cartmysql.Models()...)
	models = append(models, invmysql.Models()...)
	models = append(models, dlmysql.Models()...)
	models = append(models, ordermysql.Models()...)
	database := dbtest.New(t, models...)

	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	rules, err := domain.NewPricingRules("0.05", "100.00", "15.00")
	require.NoError(t, err)

	h := &harness{products: catalogmysql.NewProductRepository(database)}
	h.ledger = invapp.NewLedger(invmysql.NewInventoryRepository(database), database, nil)
	catalogSvc := catalogapp.NewCatalogService(h.products, catalogmysql.NewCategoryRepository(database),
		catalogmysql.NewPickupLocationRepository(database), h.ledger, database)
	h.carts = cartapp.NewCartService(cartmysql.NewAccountStore(database), nil, h.products, database, rules.TaxRate)
	grants := dlapp.NewDownloadService(dlmysql.NewGrantRepository(database), h.products, files,
		dlapp.Policy{Validity: 24 * time.Hour}, nil)
	notifier := notifyapp.NewNotifier(sender.NewLogSender(), nil, "http://localhost:8080", nil)
	orders := ordermysql.NewOrderRepository(database)

	handler := orderhttp.NewOrderHandler(
		application.NewCheckoutService(h.carts, h.products, catalogSvc, h.ledger, grants, orders, notifier, database, rules, nil),
		application.NewOrderService(orders, grants, database),
	)

	h.router = gin.New()
	h.router.Use(func(c *gin.Context) {
		if c.GetHeader("X-Test-User") != "" {
			middleware.SetPrincipal(c, &middleware.Principal{UserID: 1, Email: "ada@example.com", Name: "Ada"})
		}
		c.Next()
	})
	handler.RegisterRoutes(h.router.Group("/api/v1"))
	return h
}

func (h *harness) stockedMug(t *testing.T, stock int) *catalog.Product {
	t.Helper()
	ctx := context.Background()
	p := &catalog.Product{Name: "Mug", Price: decimal.RequireFromString("20.00"), Active: true, Variant: catalog.Physical{}}
	require.NoError(t, h.products.Create(ctx, p))
	_, err := h.ledger.Adjust(ctx, invapp.AdjustCommand{ProductID: p.ID, Delta: stock, ChangeType: inventory.ChangeInitial})
	require.NoError(t, err)
	return p
}

func (h *harness) post(t *testing.T, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", "1")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w, out
}

func TestCheckoutRequiresLogin(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckoutResponses(t *testing.T) {
	h := newHarness(t)

	w, body := h.post(t, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.EqualValues(t, http.StatusBadRequest, body["code"])
	assert.Contains(t, body, "detail")

	mug := h.stockedMug(t, 5)
	require.NoError(t, h.carts.Add(context.Background(), cart.ForUser(1), mug.ID, 2, false))

	w, body = h.post(t, gin.H{"fulfillment": "ship", "shipping": gin.H{"first_name": "Ada"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.EqualValues(t, http.StatusUnprocessableEntity, body["code"])
	errs := body["data"].(map[string]any)["errors"].(map[string]any)
	assert.Contains(t, errs, "postal_code")
	assert.Contains(t, errs, "city")

	_, err := h.ledger.Adjust(context.Background(), invapp.AdjustCommand{ProductID: mug.ID, Delta: -4, ChangeType: inventory.ChangeAdjust})
	require.NoError(t, err)
	w, body = h.post(t, gin.H{"fulfillment": "ship"})
	assert.Equal(t, http.StatusConflict, w.Code)
	conflicts := body["data"].(map[string]any)["conflicts"].([]any)
	require.Len(t, conflicts, 1)
	assert.EqualValues(t, 1, conflicts[0].(map[string]any)["available"])

	_, err = h.ledger.Adjust(context.Background(), invapp.AdjustCommand{ProductID: mug.ID, Delta: 4, ChangeType: inventory.ChangeRestock})
	require.NoError(t, err)
	w, body = h.post(t, gin.H{"fulfillment": "ship", "shipping": gin.H{
		"first_name": "Ada", "last_name": "Lovelace", "address1": "1 Main St",
		"city": "Toronto", "province": "ON", "postal_code": "M5H 2N2",
	}})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.EqualValues(t, 0, body["code"])
	assert.Equal(t, "created", body["msg"])
	assert.NotZero(t, body["data"].(map[string]any)["order_id"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("X-Test-User", "1")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

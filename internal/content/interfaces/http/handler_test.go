package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/wyfcoding/storefront/internal/content/application"
	contenthttp "github.com/wyfcoding/storefront/internal/content/interfaces/http"
	"github.com/wyfcoding/storefront/pkg/config"
)

func TestCompany(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc := application.NewContentService(config.CompanyConfig{Phone: "555-0100", Email: "hello@example.com"})
	contenthttp.NewContentHandler(svc).RegisterRoutes(r.Group("/api/v1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/company", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Storefront"`)
	assert.Contains(t, w.Body.String(), `"phone":"555-0100"`)
}

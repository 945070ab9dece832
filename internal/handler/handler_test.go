package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"storefront-service/internal/middleware"
	"storefront-service/internal/model"
	"storefront-service/internal/multitenant"
	"storefront-service/pkg/config"
	"storefront-service/pkg/jwtutil"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	jwtutil.Initialize(&config.JWTConfig{
		SigningKey:      "handler-test-key",
		ExpirationHours: 1,
	})
}

type testApp struct {
	e        *echo.Echo
	shared   *gorm.DB
	storeDir string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	dir := t.TempDir()

	shared, err := gorm.Open(sqlite.Open(filepath.Join(dir, "shared_db.sqlite3")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	models := append([]interface{}{&model.Company{}, &model.User{}}, model.TenantModels()...)
	require.NoError(t, shared.AutoMigrate(models...))

	storeDir := filepath.Join(dir, "tenants")
	provisioner := multitenant.NewProvisioner(storeDir, filepath.Join(dir, "no-such-schema.sql"),
		func(db *gorm.DB) error {
			return db.AutoMigrate(model.TenantModels()...)
		})
	router := multitenant.NewRouter(shared, multitenant.NewRegistry(), provisioner)
	Initialize(router, provisioner)

	e := echo.New()
	e.Use(middleware.TenantMiddleware([]string{"/auth", "/health"}))

	auth := e.Group("/auth")
	auth.POST("/register", Register)
	auth.POST("/login", Login)

	api := e.Group("/api")
	companies := api.Group("/companies")
	companies.GET("", ListCompanies)
	companies.GET("/:id", GetCompany)
	companies.POST("/:id/deactivate", DeactivateCompany)
	companies.POST("/:id/reactivate", ReactivateCompany)
	companies.POST("/:id/provision", ProvisionCompany)

	products := api.Group("/products")
	products.GET("", ListProducts)
	products.GET("/:id", GetProduct)
	products.POST("", CreateProduct)
	products.PUT("/:id", UpdateProduct)
	products.DELETE("/:id", DeleteProduct)
	products.GET("/:id/images", ListProductImages)
	products.POST("/:id/images", AddProductImage)
	products.DELETE("/:id/images/:image_id", DeleteProductImage)

	return &testApp{e: e, shared: shared, storeDir: storeDir}
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (a *testApp) register(t *testing.T, slug string) map[string]interface{} {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/auth/register", "", echo.Map{
		"company_name": "Company " + slug,
		"slug":         slug,
		"email":        slug + "@example.com",
		"password":     "secret123",
		"first_name":   "Ada",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)
}

func (a *testApp) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/auth/login", "", echo.Map{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := decode(t, rec)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRegisterProvisionsTenantStore(t *testing.T) {
	app := newTestApp(t)

	body := app.register(t, "acme")
	company := body["company"].(map[string]interface{})
	assert.Equal(t, "acme", company["slug"])
	assert.Equal(t, "tenant_acme", company["db_name"])
	assert.Equal(t, true, company["storage_ready"])

	_, err := os.Stat(filepath.Join(app.storeDir, "acme_db.sqlite3"))
	assert.NoError(t, err, "the tenant store file must exist after registration")
}

func TestRegisterValidation(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodPost, "/auth/register", "", echo.Map{
		"company_name": "No Slug Inc",
		"email":        "noslug@example.com",
		"password":     "secret123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, "/auth/register", "", echo.Map{
		"company_name": "Bad Slug Inc",
		"slug":         "Bad Slug!",
		"email":        "badslug@example.com",
		"password":     "secret123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterDuplicateSlugConflicts(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "acme")

	rec := app.do(t, http.MethodPost, "/auth/register", "", echo.Map{
		"company_name": "Acme Again",
		"slug":         "acme",
		"email":        "other@example.com",
		"password":     "secret123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginIssuesTenantToken(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "acme")

	token := app.login(t, "acme@example.com", "secret123")
	claims, err := jwtutil.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.TenantSlug)
	assert.Equal(t, "admin", claims.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "acme")

	rec := app.do(t, http.MethodPost, "/auth/login", "", echo.Map{
		"email":    "acme@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, http.MethodPost, "/auth/login", "", echo.Map{
		"email":    "nobody@example.com",
		"password": "secret123",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProductsAreIsolatedBetweenTenants(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "acme")
	app.register(t, "globex")
	acme := app.login(t, "acme@example.com", "secret123")
	globex := app.login(t, "globex@example.com", "secret123")

	rec := app.do(t, http.MethodPost, "/api/products", acme, echo.Map{
		"name":   "Widget",
		"price":  9.99,
		"sku":    "WID-1",
		"status": model.ProductStatusActive,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	productID := decode(t, rec)["id"].(string)

	rec = app.do(t, http.MethodGet, "/api/products", acme, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var acmeProducts []model.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acmeProducts))
	require.Len(t, acmeProducts, 1)
	assert.Equal(t, "Widget", acmeProducts[0].Name)

	rec = app.do(t, http.MethodGet, "/api/products", globex, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var globexProducts []model.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &globexProducts))
	assert.Empty(t, globexProducts, "another tenant must not see the product")

	rec = app.do(t, http.MethodGet, "/api/products/"+productID, globex, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/products/"+productID, acme, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProductUpdateAndDelete(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "acme")
	token := app.login(t, "acme@example.com", "secret123")

	rec := app.do(t, http.MethodPost, "/api/products", token, echo.Map{
		"name":  "Widget",
		"price": 9.99,
		"sku":   "WID-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	productID := decode(t, rec)["id"].(string)

	rec = app.do(t, http.MethodPut, "/api/products/"+productID, token, echo.Map{
		"name":  "Widget Pro",
		"price": 19.99,
		"sku":   "WID-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode(t, rec)
	assert.Equal(t, "Widget Pro", updated["name"])
	assert.Equal(t, "widget-pro", updated["slug"])

	rec = app.do(t, http.MethodDelete, "/api/products/"+productID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodDelete, "/api/products/"+productID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDuplicateSKUConflicts(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "acme")
	token := app.login(t, "acme@example.com", "secret123")

	rec := app.do(t, http.MethodPost, "/api/products", token, echo.Map{"name": "First", "sku": "DUP-1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/products", token, echo.Map{"name": "Second", "sku": "DUP-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestProductWritesRequireTenantContext(t *testing.T) {
	app := newTestApp(t)

	token, err := jwtutil.GenerateToken("drifter@example.com", "u-shared")
	require.NoError(t, err)

	rec := app.do(t, http.MethodPost, "/api/products", token, echo.Map{"name": "Widget"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenant context required")
}

func TestProductReadsFallBackToSharedView(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "acme")
	acme := app.login(t, "acme@example.com", "secret123")

	rec := app.do(t, http.MethodPost, "/api/products", acme, echo.Map{"name": "Widget"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// A token without a tenant claim reads the shared store's view, which
	// holds no tenant data. Degraded, not broken.
	token, err := jwtutil.GenerateToken("drifter@example.com", "u-shared")
	require.NoError(t, err)

	rec = app.do(t, http.MethodGet, "/api/products", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var products []model.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	assert.Empty(t, products)
}

func TestSharedEndpointsWorkWithoutTenantClaim(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "acme")

	token, err := jwtutil.GenerateToken("drifter@example.com", "u-shared")
	require.NoError(t, err)

	rec := app.do(t, http.MethodGet, "/api/companies", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var companies []model.Company
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &companies))
	assert.Len(t, companies, 1)
}

func TestDeactivateBlocksTenantOperations(t *testing.T) {
	app := newTestApp(t)
	body := app.register(t, "acme")
	companyID := body["company"].(map[string]interface{})["id"].(string)
	token := app.login(t, "acme@example.com", "secret123")

	rec := app.do(t, http.MethodPost, "/api/companies/"+companyID+"/deactivate", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.do(t, http.MethodPost, "/api/products", token, echo.Map{"name": "Widget"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/companies/"+companyID+"/reactivate", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/products", token, echo.Map{"name": "Widget"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestProvisionRetryAfterFailure(t *testing.T) {
	app := newTestApp(t)

	// A regular file where the store directory should go makes store
	// creation fail. Registration must still succeed.
	require.NoError(t, os.WriteFile(app.storeDir, []byte("in the way"), 0o644))

	body := app.register(t, "acme")
	company := body["company"].(map[string]interface{})
	companyID := company["id"].(string)
	assert.Equal(t, false, company["storage_ready"])

	token := app.login(t, "acme@example.com", "secret123")

	rec := app.do(t, http.MethodPost, "/api/companies/"+companyID+"/provision", token, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, multitenant.StageCreate, decode(t, rec)["stage"])

	require.NoError(t, os.Remove(app.storeDir))

	rec = app.do(t, http.MethodPost, "/api/companies/"+companyID+"/provision", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "tenant_acme", decode(t, rec)["storage_id"])

	var fresh model.Company
	require.NoError(t, app.shared.First(&fresh, "id = ?", companyID).Error)
	assert.True(t, fresh.StorageReady)
}

func TestProductImageLifecycle(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "acme")
	token := app.login(t, "acme@example.com", "secret123")

	rec := app.do(t, http.MethodPost, "/api/products", token, echo.Map{"name": "Widget"})
	require.Equal(t, http.StatusCreated, rec.Code)
	productID := decode(t, rec)["id"].(string)

	rec = app.do(t, http.MethodPost, "/api/products/"+productID+"/images", token, echo.Map{
		"image": "widget-front.jpg",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode(t, rec)
	assert.Equal(t, true, first["is_primary"], "the first image becomes primary")

	rec = app.do(t, http.MethodPost, "/api/products/"+productID+"/images", token, echo.Map{
		"image":      "widget-back.jpg",
		"is_primary": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	secondID := decode(t, rec)["id"].(string)

	rec = app.do(t, http.MethodGet, "/api/products/"+productID+"/images", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var images []model.ProductImage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &images))
	require.Len(t, images, 2)
	for _, img := range images {
		assert.Equal(t, img.ID == secondID, img.IsPrimary,
			fmt.Sprintf("image %s primary flag", img.Image))
	}

	rec = app.do(t, http.MethodDelete, "/api/products/"+productID+"/images/"+secondID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodDelete, "/api/products/"+productID+"/images/"+secondID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

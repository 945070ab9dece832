package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront-service/internal/model"
	"storefront-service/internal/multitenant"
	"storefront-service/pkg/logger"
	"storefront-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProductRequest defines the structure for product creation/update requests
type ProductRequest struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Price           float64  `json:"price"`
	CostPrice       *float64 `json:"cost_price,omitempty"`
	SKU             string   `json:"sku"`
	Quantity        int      `json:"quantity"`
	Status          string   `json:"status"`
	IsFeatured      bool     `json:"is_featured"`
	MetaTitle       string   `json:"meta_title,omitempty"`
	MetaDescription string   `json:"meta_description,omitempty"`
}

// tenantStore routes a tenant-scoped data operation. Routing happens fresh
// on every call; nothing is cached between operations. Read paths pass
// strict=false and tolerate the shared-store fallback; write paths pass
// strict=true and fail closed without a tenant context.
func tenantStore(c echo.Context, strict bool) (*gorm.DB, error) {
	if strict {
		return router.RouteStrict(c.Request().Context())
	}
	return router.Route(multitenant.CategoryTenant, c.Request().Context())
}

func routeErrorResponse(c echo.Context, err error) error {
	log := logger.FromContext(c)
	switch {
	case errors.Is(err, multitenant.ErrNoTenant):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant context required"})
	case errors.Is(err, multitenant.ErrTenantInactive):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "tenant is deactivated"})
	default:
		log.Error("Failed to route tenant operation", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storage unavailable"})
	}
}

// ListProducts handles retrieving the tenant's products with optional filtering
func ListProducts(c echo.Context) error {
	log := logger.FromContext(c)

	db, err := tenantStore(c, false)
	if err != nil {
		return routeErrorResponse(c, err)
	}

	query := db

	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	if featured := c.QueryParam("is_featured"); featured != "" {
		if value, err := strconv.ParseBool(featured); err == nil {
			query = query.Where("is_featured = ?", value)
		} else {
			log.Warn("Invalid is_featured parameter", zap.String("value", featured))
		}
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var products []model.Product
	if result := query.Order("created_at DESC").Find(&products); result.Error != nil {
		log.Error("Failed to list products", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve products"})
	}

	return c.JSON(http.StatusOK, products)
}

// GetProduct handles retrieving a single product by ID
func GetProduct(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")

	db, err := tenantStore(c, false)
	if err != nil {
		return routeErrorResponse(c, err)
	}

	var product model.Product
	if result := db.Preload("Images").First(&product, "id = ?", id); result.Error != nil {
		log.Warn("Product not found", zap.String("product_id", id))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
	}

	return c.JSON(http.StatusOK, product)
}

// CreateProduct handles creating a new product in the tenant's store
func CreateProduct(c echo.Context) error {
	log := logger.FromContext(c)

	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	db, err := tenantStore(c, true)
	if err != nil {
		return routeErrorResponse(c, err)
	}

	if req.SKU != "" {
		var count int64
		db.Model(&model.Product{}).Where("sku = ?", req.SKU).Count(&count)
		if count > 0 {
			log.Warn("Product with this SKU already exists", zap.String("sku", req.SKU))
			return c.JSON(http.StatusConflict, echo.Map{"error": "product with this SKU already exists"})
		}
	}

	userID, _ := c.Get("user_id").(string)
	product := model.Product{
		Name:            req.Name,
		Slug:            model.UniqueProductSlug(db, req.Name, ""),
		Description:     req.Description,
		Price:           req.Price,
		CostPrice:       req.CostPrice,
		SKU:             req.SKU,
		Quantity:        req.Quantity,
		Status:          req.Status,
		IsFeatured:      req.IsFeatured,
		MetaTitle:       req.MetaTitle,
		MetaDescription: req.MetaDescription,
		CreatedBy:       userID,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := db.Create(&product); result.Error != nil {
		log.Error("Failed to create product", zap.String("name", req.Name), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create product"})
	}

	log.Info("Product created",
		zap.String("product_id", product.ID),
		zap.String("name", product.Name),
		zap.String("slug", product.Slug))
	return c.JSON(http.StatusCreated, product)
}

// UpdateProduct handles updating an existing product
func UpdateProduct(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")

	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.String("product_id", id), zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	db, err := tenantStore(c, true)
	if err != nil {
		return routeErrorResponse(c, err)
	}

	var product model.Product
	if result := db.First(&product, "id = ?", id); result.Error != nil {
		log.Warn("Product not found for update", zap.String("product_id", id))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
	}

	if req.SKU != "" && req.SKU != product.SKU {
		var count int64
		db.Model(&model.Product{}).Where("sku = ? AND id != ?", req.SKU, id).Count(&count)
		if count > 0 {
			return c.JSON(http.StatusConflict, echo.Map{"error": "product with this SKU already exists"})
		}
	}

	if req.Name != "" && req.Name != product.Name {
		product.Slug = model.UniqueProductSlug(db, req.Name, product.ID)
	}

	userID, _ := c.Get("user_id").(string)
	product.Name = req.Name
	product.Description = req.Description
	product.Price = req.Price
	product.CostPrice = req.CostPrice
	product.SKU = req.SKU
	product.Quantity = req.Quantity
	product.Status = req.Status
	product.IsFeatured = req.IsFeatured
	product.MetaTitle = req.MetaTitle
	product.MetaDescription = req.MetaDescription
	product.UpdatedBy = userID

	defer prometheus.TrackDBOperation("update")(time.Now())
	if result := db.Save(&product); result.Error != nil {
		log.Error("Failed to update product", zap.String("product_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update product"})
	}

	log.Info("Product updated", zap.String("product_id", id), zap.String("name", product.Name))
	return c.JSON(http.StatusOK, product)
}

// DeleteProduct handles deleting a product and its images
func DeleteProduct(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")

	db, err := tenantStore(c, true)
	if err != nil {
		return routeErrorResponse(c, err)
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	result := db.Delete(&model.Product{}, "id = ?", id)
	if result.Error != nil {
		log.Error("Failed to delete product", zap.String("product_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete product"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
	}

	db.Delete(&model.ProductImage{}, "product_id = ?", id)

	log.Info("Product deleted", zap.String("product_id", id))
	return c.JSON(http.StatusOK, echo.Map{"message": "product deleted successfully"})
}

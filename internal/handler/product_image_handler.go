package handler

import (
	"net/http"
	"time"

	"storefront-service/internal/model"
	"storefront-service/pkg/logger"
	"storefront-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ProductImageRequest defines the structure for image attachment requests
type ProductImageRequest struct {
	Image     string `json:"image"`
	AltText   string `json:"alt_text,omitempty"`
	IsPrimary bool   `json:"is_primary"`
	SortOrder int    `json:"sort_order"`
}

// ListProductImages handles retrieving a product's images
func ListProductImages(c echo.Context) error {
	log := logger.FromContext(c)
	productID := c.Param("id")

	db, err := tenantStore(c, false)
	if err != nil {
		return routeErrorResponse(c, err)
	}

	var images []model.ProductImage
	result := db.Where("product_id = ?", productID).
		Order("sort_order ASC, created_at DESC").
		Find(&images)
	if result.Error != nil {
		log.Error("Failed to list product images", zap.String("product_id", productID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve images"})
	}

	return c.JSON(http.StatusOK, images)
}

// AddProductImage attaches an image to a product. The image row relates to
// the product row, so the router's relation gate must admit the pair before
// the association is written.
func AddProductImage(c echo.Context) error {
	log := logger.FromContext(c)
	productID := c.Param("id")

	var req ProductImageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}
	if req.Image == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "image is required"})
	}

	db, err := tenantStore(c, true)
	if err != nil {
		return routeErrorResponse(c, err)
	}

	var product model.Product
	if result := db.First(&product, "id = ?", productID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
	}

	if !router.AllowRelation(product.StorageCategory(), model.ProductImage{}.StorageCategory()) {
		log.Error("Relation rejected across storage categories", zap.String("product_id", productID))
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "entities cannot be related across stores"})
	}

	var count int64
	db.Model(&model.ProductImage{}).Where("product_id = ?", productID).Count(&count)

	image := model.ProductImage{
		ProductID: product.ID,
		Image:     req.Image,
		AltText:   req.AltText,
		IsPrimary: req.IsPrimary || count == 0, // first image becomes primary
		SortOrder: req.SortOrder,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := db.Create(&image); result.Error != nil {
		log.Error("Failed to add product image", zap.String("product_id", productID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to add image"})
	}

	// A new primary image demotes any other primary for the product.
	if image.IsPrimary {
		db.Model(&model.ProductImage{}).
			Where("product_id = ? AND id != ? AND is_primary = ?", productID, image.ID, true).
			Update("is_primary", false)
	}

	log.Info("Product image added",
		zap.String("product_id", productID),
		zap.String("image_id", image.ID),
		zap.Bool("is_primary", image.IsPrimary))
	return c.JSON(http.StatusCreated, image)
}

// DeleteProductImage removes an image from a product
func DeleteProductImage(c echo.Context) error {
	log := logger.FromContext(c)
	productID := c.Param("id")
	imageID := c.Param("image_id")

	db, err := tenantStore(c, true)
	if err != nil {
		return routeErrorResponse(c, err)
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	result := db.Delete(&model.ProductImage{}, "id = ? AND product_id = ?", imageID, productID)
	if result.Error != nil {
		log.Error("Failed to delete product image", zap.String("image_id", imageID), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete image"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "image not found"})
	}

	log.Info("Product image deleted", zap.String("product_id", productID), zap.String("image_id", imageID))
	return c.JSON(http.StatusOK, echo.Map{"message": "image deleted successfully"})
}

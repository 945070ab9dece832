package handler

import (
	"errors"
	"net/http"
	"time"

	"storefront-service/internal/model"
	"storefront-service/internal/multitenant"
	"storefront-service/pkg/logger"
	"storefront-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ListCompanies handles retrieving all companies. This is a shared-category
// endpoint: it must work for tokens that carry no tenant claim.
func ListCompanies(c echo.Context) error {
	log := logger.FromContext(c)

	db, err := router.Route(model.Company{}.StorageCategory(), c.Request().Context())
	if err != nil {
		log.Error("Failed to route company listing", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var companies []model.Company
	if result := db.Order("created_at DESC").Find(&companies); result.Error != nil {
		log.Error("Failed to list companies", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve companies"})
	}

	return c.JSON(http.StatusOK, companies)
}

// GetCompany handles retrieving a single company by ID
func GetCompany(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")

	db, err := router.Route(model.Company{}.StorageCategory(), c.Request().Context())
	if err != nil {
		log.Error("Failed to route company lookup", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	var company model.Company
	if result := db.First(&company, "id = ?", id); result.Error != nil {
		log.Warn("Company not found", zap.String("company_id", id))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "company not found"})
	}

	return c.JSON(http.StatusOK, company)
}

// DeactivateCompany stops routing to the company's tenant store without
// deleting it. The store stays on disk; reactivation restores routing.
func DeactivateCompany(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")
	prometheus.RecordTenantOperation("deactivate")

	db, err := router.Route(model.Company{}.StorageCategory(), c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	var company model.Company
	if result := db.First(&company, "id = ?", id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "company not found"})
	}

	if result := db.Model(&company).Update("is_active", false); result.Error != nil {
		log.Error("Failed to deactivate company", zap.String("company_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "deactivation failed"})
	}

	router.Deactivate(company.DBName)

	log.Info("Company deactivated",
		zap.String("company_id", company.ID),
		zap.String("slug", company.Slug),
		zap.String("storage_id", company.DBName))

	return c.JSON(http.StatusOK, echo.Map{"message": "company deactivated"})
}

// ReactivateCompany restores routing to a deactivated company's store.
func ReactivateCompany(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")
	prometheus.RecordTenantOperation("reactivate")

	db, err := router.Route(model.Company{}.StorageCategory(), c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	var company model.Company
	if result := db.First(&company, "id = ?", id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "company not found"})
	}

	if result := db.Model(&company).Update("is_active", true); result.Error != nil {
		log.Error("Failed to reactivate company", zap.String("company_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reactivation failed"})
	}

	router.Reactivate(company.DBName)

	log.Info("Company reactivated", zap.String("company_id", company.ID), zap.String("slug", company.Slug))
	return c.JSON(http.StatusOK, echo.Map{"message": "company reactivated"})
}

// ProvisionCompany retries tenant store provisioning for a company whose
// storage is not yet ready.
func ProvisionCompany(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")
	prometheus.RecordTenantOperation("provision")

	db, err := router.Route(model.Company{}.StorageCategory(), c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	var company model.Company
	if result := db.First(&company, "id = ?", id); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "company not found"})
	}

	storageID, err := provisioner.Provision(company.Slug)
	if err != nil {
		var pErr *multitenant.ProvisionError
		stage := ""
		if errors.As(err, &pErr) {
			stage = pErr.Stage
		}
		log.Error("Tenant store provisioning failed",
			zap.String("slug", company.Slug),
			zap.String("stage", stage),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "provisioning failed",
			"stage": stage,
		})
	}

	if !company.StorageReady {
		if result := db.Model(&company).Update("storage_ready", true); result.Error != nil {
			log.Error("Failed to record storage readiness", zap.Error(result.Error))
		}
	}

	log.Info("Tenant store provisioned",
		zap.String("company_id", company.ID),
		zap.String("storage_id", storageID))

	return c.JSON(http.StatusOK, echo.Map{
		"message":    "tenant store ready",
		"storage_id": storageID,
	})
}

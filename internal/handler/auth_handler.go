package handler

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"storefront-service/internal/model"
	"storefront-service/internal/multitenant"
	"storefront-service/pkg/jwtutil"
	"storefront-service/pkg/logger"
	"storefront-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var slugFormat = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// RegisterRequest defines the structure for company registration
type RegisterRequest struct {
	CompanyName string `json:"company_name"`
	Slug        string `json:"slug"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
}

// Register handles company registration: it creates the company and its
// admin user in the shared store, then provisions the company's tenant
// store. A provisioning failure does not abort registration; the company is
// left with storage_ready=false and provisioning can be retried later.
func Register(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterCounter.Inc()

	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse registration request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.CompanyName == "" || req.Slug == "" || req.Email == "" || req.Password == "" {
		prometheus.RecordAuthError("incomplete_registration")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "company_name, slug, email and password are required"})
	}

	if !slugFormat.MatchString(req.Slug) {
		prometheus.RecordAuthError("invalid_slug")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "slug must contain only lowercase letters, digits and hyphens"})
	}

	db, err := router.Route(model.Company{}.StorageCategory(), c.Request().Context())
	if err != nil {
		log.Error("Failed to route registration", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	company := model.Company{
		Name:     req.CompanyName,
		Slug:     req.Slug,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		IsActive: true,
	}
	user := model.User{
		Email:     req.Email,
		Password:  string(hashed),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      "admin",
		IsActive:  true,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	tx := db.Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	if result := tx.Create(&company); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to create company", zap.String("slug", req.Slug), zap.Error(result.Error))
		prometheus.RecordAuthError("company_creation_failed")
		return c.JSON(http.StatusConflict, echo.Map{"error": "company with this slug or email already exists"})
	}

	user.CompanyID = &company.ID
	if result := tx.Create(&user); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to create admin user", zap.String("email", req.Email), zap.Error(result.Error))
		prometheus.RecordAuthError("user_creation_failed")
		return c.JSON(http.StatusConflict, echo.Map{"error": "user with this email already exists"})
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit registration", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	// Provision the tenant store. Failure is a product decision, not a
	// registration failure: the account exists, storage is retryable.
	prometheus.RecordTenantOperation("provision")
	if _, err := provisioner.Provision(company.Slug); err != nil {
		var pErr *multitenant.ProvisionError
		stage := ""
		if errors.As(err, &pErr) {
			stage = pErr.Stage
		}
		log.Error("Tenant store provisioning failed during registration",
			zap.String("slug", company.Slug),
			zap.String("stage", stage),
			zap.Error(err))
	} else {
		if result := db.Model(&company).Update("storage_ready", true); result.Error != nil {
			log.Error("Failed to record storage readiness", zap.Error(result.Error))
		} else {
			company.StorageReady = true
		}
	}

	log.Info("Company registered",
		zap.String("company_id", company.ID),
		zap.String("slug", company.Slug),
		zap.Bool("storage_ready", company.StorageReady))

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Company registered successfully",
		"company": company,
		"user": echo.Map{
			"id":    user.ID,
			"email": user.Email,
			"role":  user.Role,
		},
	})
}

// Login authenticates a user and issues a token carrying the tenant claim
// of the user's company. Users without a company, or whose company is
// deactivated, get a token without a tenant claim.
func Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	db, err := router.Route(model.User{}.StorageCategory(), c.Request().Context())
	if err != nil {
		log.Error("Failed to route login", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if result := db.Where("email = ?", req.Email).First(&user); result.Error != nil {
		log.Warn("User not found", zap.String("email", req.Email))
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		log.Warn("Invalid password", zap.String("email", req.Email))
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	tenantSlug := ""
	if user.CompanyID != nil {
		var company model.Company
		if result := db.First(&company, "id = ?", *user.CompanyID); result.Error == nil && company.IsActive {
			tenantSlug = company.Slug
		}
	}

	token, err := jwtutil.GenerateTokenWithTenant(user.Email, user.ID, tenantSlug, user.Role)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	log.Info("User logged in",
		zap.String("email", user.Email),
		zap.String("tenant_slug", tenantSlug))

	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"user": echo.Map{
			"id":          user.ID,
			"email":       user.Email,
			"role":        user.Role,
			"company_id":  user.CompanyID,
			"tenant_slug": tenantSlug,
		},
	})
}

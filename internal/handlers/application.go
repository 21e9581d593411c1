package handlers

import (
	"net/http"
	"strconv"

	"github.com/luanalves/realestate-backend-sub002/internal/apierr"
	"github.com/luanalves/realestate-backend-sub002/internal/middleware"
	"github.com/luanalves/realestate-backend-sub002/internal/models"
	"github.com/luanalves/realestate-backend-sub002/internal/services"
	"github.com/luanalves/realestate-backend-sub002/internal/store"

	"github.com/gin-gonic/gin"
)

// ApplicationHandler is the admin API for registered API clients
type ApplicationHandler struct {
	credentials *services.CredentialService
}

func NewApplicationHandler(cs *services.CredentialService) *ApplicationHandler {
	return &ApplicationHandler{credentials: cs}
}

// paginationFromQuery reads page, page_size and search
func paginationFromQuery(c *gin.Context) store.PaginationParams {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	return store.NewPaginationParams(page, pageSize, c.Query("search"))
}

// List handles GET /admin/applications
func (h *ApplicationHandler) List(c *gin.Context) {
	apps, pagination, err := h.credentials.ListApplications(
		c.Request.Context(),
		paginationFromQuery(c),
	)
	if err != nil {
		apierr.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"applications": apps,
		"pagination":   pagination,
	})
}

// Create handles POST /admin/applications. The response carries the only
// copy of the plaintext client secret.
func (h *ApplicationHandler) Create(c *gin.Context) {
	var req services.CreateApplicationRequest
	if err := c.ShouldBind(&req); err != nil {
		apierr.Abort(c, http.StatusBadRequest, apierr.CodeInvalidRequest, "Malformed request body")
		return
	}
	if user, ok := c.Get(middleware.ContextUser); ok {
		req.CreatedBy = user.(*models.User).Username
	}

	app, err := h.credentials.CreateApplication(c.Request.Context(), req)
	if err != nil {
		apierr.AbortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusCreated, app)
}

// Get handles GET /admin/applications/:client_id
func (h *ApplicationHandler) Get(c *gin.Context) {
	app, err := h.credentials.GetApplication(c.Request.Context(), c.Param("client_id"))
	if err != nil {
		apierr.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// RotateSecret handles POST /admin/applications/:client_id/rotate. Every
// token of the application is revoked.
func (h *ApplicationHandler) RotateSecret(c *gin.Context) {
	app, err := h.credentials.RegenerateSecret(c.Request.Context(), c.Param("client_id"))
	if err != nil {
		apierr.AbortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, app)
}

// Deactivate handles DELETE /admin/applications/:client_id
func (h *ApplicationHandler) Deactivate(c *gin.Context) {
	if err := h.credentials.DeactivateApplication(
		c.Request.Context(),
		c.Param("client_id"),
	); err != nil {
		apierr.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

package auth

import (
	"errors"
	"net/http"

	"communityboard/internal/middleware"
	"communityboard/internal/pkg/response"
	"communityboard/internal/pkg/validator"

	"github.com/gin-gonic/gin"
)

// Handler exposes login, refresh and logout over HTTP.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterPublicRoutes(v1 *gin.RouterGroup, limiter gin.HandlerFunc) {
	authGroup := v1.Group("/auth", limiter)
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
	}
}

func (h *Handler) RegisterProtectedRoutes(protected *gin.RouterGroup) {
	protected.POST("/auth/logout", h.Logout)
}

// Login godoc
// @Summary  Log in with id and password
// @Tags     Auth
// @Param    request body LoginRequest true "credentials"
// @Success  200 {object} LoginResponse
// @Failure  401 {object} map[string]interface{}
// @Router   /auth/login [POST]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", validator.Details(err, &req))
		return
	}

	result, err := h.service.Login(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Authorization", bearerPrefix+result.AccessToken)
	c.Header("Refresh-Token", result.RefreshToken)
	response.Success(c, http.StatusOK, LoginResponse{
		EndDate: result.Until,
		Allowed: result.Allowed,
	})
}

func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", validator.Details(err, &req))
		return
	}

	token, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Authorization", bearerPrefix+token)
	response.Success(c, http.StatusOK, RefreshResponse{AccessToken: token})
}

func (h *Handler) Logout(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	if err := h.service.Logout(c.Request.Context(), p, middleware.AccessTokenFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "logged out"})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		response.Error(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid id or password")
	case errors.Is(err, ErrInvalidRefresh):
		response.Error(c, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token is invalid or expired")
	case errors.Is(err, ErrUnauthenticated):
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	case errors.Is(err, ErrStoreUnavailable):
		response.Error(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Temporarily unavailable, retry later")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

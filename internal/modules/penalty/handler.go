package penalty

import (
	"errors"
	"net/http"

	"communityboard/internal/middleware"
	"communityboard/internal/pkg/response"
	"communityboard/internal/repository"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterProtectedRoutes(protected *gin.RouterGroup) {
	g := protected.Group("/penalty")
	{
		g.GET("/me", h.GetMyCount)
		g.GET("/me/limits", h.GetMyLimits)
		g.GET("/all", h.GetTotal)
	}
}

func (h *Handler) GetMyCount(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	count, err := h.engine.GetPenaltyCount(c.Request.Context(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"penalty_count": count})
}

func (h *Handler) GetMyLimits(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	info, err := h.engine.GetLimitInfo(c.Request.Context(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, info)
}

func (h *Handler) GetTotal(c *gin.Context) {
	total, err := h.engine.TotalPenaltyCount(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"total_penalty_count": total})
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrStoreUnavailable) {
		response.Error(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Temporarily unavailable, retry later")
		return
	}
	_ = c.Error(err)
	response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}

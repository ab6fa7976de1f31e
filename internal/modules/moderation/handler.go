package moderation

import (
	"errors"
	"net/http"

	"communityboard/internal/pkg/response"
	"communityboard/internal/repository"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	filter *Filter
}

func NewHandler(filter *Filter) *Handler {
	return &Handler{filter: filter}
}

func (h *Handler) RegisterPublicRoutes(v1 *gin.RouterGroup) {
	v1.GET("/filter/count", h.GetFilterCount)
}

func (h *Handler) GetFilterCount(c *gin.Context) {
	count, err := h.filter.FilteredCount(c.Request.Context())
	if err != nil {
		if errors.Is(err, repository.ErrStoreUnavailable) {
			response.Error(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Temporarily unavailable, retry later")
			return
		}
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"count": count})
}

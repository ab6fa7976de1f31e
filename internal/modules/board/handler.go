package board

import (
	"net/http"

	"communityboard/internal/middleware"
	"communityboard/internal/modules/moderation"
	"communityboard/internal/pkg/response"
	"communityboard/internal/pkg/validator"

	"github.com/gin-gonic/gin"
)

type ScreenRequest struct {
	Text      string `json:"text" binding:"required"`
	PostID    *int64 `json:"post_id"`
	CommentID *int64 `json:"comment_id"`
}

type ScreenResponse struct {
	Text string `json:"text"`
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterProtectedRoutes(protected *gin.RouterGroup) {
	protected.POST("/board/screen", h.Screen)
}

// Screen is called by the post/comment layer before it stores user text.
func (h *Handler) Screen(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req ScreenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", validator.Details(err, &req))
		return
	}

	text, err := h.service.PrepareWrite(c.Request.Context(), p, moderation.Submission{
		Text:      req.Text,
		PostID:    req.PostID,
		CommentID: req.CommentID,
	})
	if err != nil {
		middleware.WriteGateError(c, err)
		return
	}
	response.Success(c, http.StatusOK, ScreenResponse{Text: text})
}

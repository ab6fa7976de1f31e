package middleware

import (
	"errors"
	"net/http"
	"time"

	"communityboard/internal/pkg/response"
	"communityboard/internal/repository"

	"github.com/gin-gonic/gin"
)

// suspension is satisfied by errors carrying the end of a write suspension.
type suspension interface {
	error
	SuspendedUntil() time.Time
}

// WriteGateError maps write-gate errors to the response envelope. Anything
// carrying SuspendedUntil becomes 403 SUSPENDED with the end time.
func WriteGateError(c *gin.Context, err error) {
	var s suspension
	switch {
	case errors.As(err, &s):
		response.ErrorWithDetails(c, http.StatusForbidden, "SUSPENDED", "Writing is suspended", gin.H{
			"until": s.SuspendedUntil(),
		})
	case errors.Is(err, repository.ErrStoreUnavailable):
		response.Error(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Temporarily unavailable, retry later")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

package middleware

import (
	"context"
	"errors"
	"net/http"

	"communityboard/internal/domain"
	"communityboard/internal/pkg/response"
	"communityboard/internal/repository"

	"github.com/gin-gonic/gin"
)

const (
	principalKey   = "principal"
	accessTokenKey = "access_token"
	userIDKey      = "user_id"
)

// Authenticator resolves an Authorization header to a principal and the raw
// access token it carried.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (domain.Principal, string, error)
}

// Auth rejects requests without a live access token. Every rejection looks
// the same to the client except a store outage, which is retryable.
func Auth(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			header = bearerFromQuery(c)
		}

		p, token, err := authenticator.Authenticate(c.Request.Context(), header)
		if err != nil {
			if errors.Is(err, repository.ErrStoreUnavailable) {
				response.Error(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Temporarily unavailable, retry later")
			} else {
				response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			}
			c.Abort()
			return
		}

		c.Set(principalKey, p)
		c.Set(accessTokenKey, token)
		c.Set(userIDKey, p.InternalID)
		c.Next()
	}
}

// bearerFromQuery supports websocket upgrades, where browsers cannot set
// headers. Only the ?token= parameter is read.
func bearerFromQuery(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return "Bearer " + token
	}
	return ""
}

func PrincipalFrom(c *gin.Context) (domain.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	p, ok := v.(domain.Principal)
	return p, ok
}

func AccessTokenFrom(c *gin.Context) string {
	return c.GetString(accessTokenKey)
}

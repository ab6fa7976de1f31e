package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"communityboard/internal/domain"
	"communityboard/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockAuthenticator struct {
	mock.Mock
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, header string) (domain.Principal, string, error) {
	args := m.Called(ctx, header)
	return args.Get(0).(domain.Principal), args.String(1), args.Error(2)
}

type suspendedErr struct{ until time.Time }

func (e suspendedErr) Error() string             { return "suspended" }
func (e suspendedErr) SuspendedUntil() time.Time { return e.until }

var alice = domain.Principal{ExternalID: "alice", InternalID: 42, DisplayName: "Alice"}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAuth_ValidToken(t *testing.T) {
	authn := new(mockAuthenticator)
	authn.On("Authenticate", mock.Anything, "Bearer good").Return(alice, "good", nil)

	router := gin.New()
	router.Use(Auth(authn))
	router.GET("/protected", func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		assert.True(t, ok)
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetInt64("user_id"),
			"subject": p.ExternalID,
			"token":   AccessTokenFrom(c),
		})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "42")
	assert.Contains(t, w.Body.String(), "alice")
	authn.AssertExpectations(t)
}

func TestAuth_RejectionsAreIndistinguishable(t *testing.T) {
	for _, header := range []string{"", "Basic dGVzdA==", "Bearer expired", "Bearer forged"} {
		authn := new(mockAuthenticator)
		authn.On("Authenticate", mock.Anything, header).Return(domain.Principal{}, "", errors.New("unauthenticated"))

		router := gin.New()
		router.Use(Auth(authn))
		router.GET("/protected", func(c *gin.Context) {
			t.Fatal("handler should not be reached")
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
		assert.JSONEq(t, `{"success":false,"error":{"code":"UNAUTHORIZED","message":"Authentication required"}}`, w.Body.String())
	}
}

func TestAuth_StoreOutageIsRetryable(t *testing.T) {
	authn := new(mockAuthenticator)
	authn.On("Authenticate", mock.Anything, "Bearer tok").
		Return(domain.Principal{}, "", fmt.Errorf("%w: redis down", repository.ErrStoreUnavailable))

	router := gin.New()
	router.Use(Auth(authn))
	router.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer tok")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "STORE_UNAVAILABLE")
}

func TestAuth_QueryTokenFallback(t *testing.T) {
	authn := new(mockAuthenticator)
	authn.On("Authenticate", mock.Anything, "Bearer from-query").Return(alice, "from-query", nil)

	router := gin.New()
	router.Use(Auth(authn))
	router.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	authn.AssertExpectations(t)
}

func TestWriteGateError(t *testing.T) {
	until := time.Date(2024, 5, 1, 12, 3, 0, 0, time.UTC)

	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"suspended", fmt.Errorf("gate: %w", suspendedErr{until: until}), http.StatusForbidden, "2024-05-01T12:03:00Z"},
		{"store down", repository.ErrStoreUnavailable, http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.POST("/write", func(c *gin.Context) { WriteGateError(c, tc.err) })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/write", nil))

			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.body)
		})
	}
}

func TestRateLimit(t *testing.T) {
	router := gin.New()
	router.POST("/login", RateLimit(1, 2), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLimiterPool_EvictsIdleBuckets(t *testing.T) {
	pool := newLimiterPool(1, 1)
	start := time.Now()

	assert.True(t, pool.allow("a", start))
	assert.False(t, pool.allow("a", start))

	later := start.Add(limiterIdleTTL + time.Second)
	assert.True(t, pool.allow("b", later))
	_, kept := pool.m["a"]
	assert.False(t, kept)
}

func TestLimiterPool_SweepsAtMostOncePerInterval(t *testing.T) {
	pool := newLimiterPool(100, 100)
	start := time.Now()

	assert.True(t, pool.allow("a", start))
	assert.True(t, pool.lastSweep.Equal(start))

	assert.True(t, pool.allow("b", start.Add(30*time.Second)))
	assert.True(t, pool.lastSweep.Equal(start), "no sweep inside the interval")

	later := start.Add(limiterIdleTTL + time.Second)
	assert.True(t, pool.allow("b", later))
	assert.True(t, pool.lastSweep.Equal(later))
	_, keptA := pool.m["a"]
	_, keptB := pool.m["b"]
	assert.False(t, keptA)
	assert.True(t, keptB)
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtutil "github.com/rl-arena/ladder-backend/pkg/jwt"
	"github.com/rl-arena/ladder-backend/pkg/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newGuildRouter(manager *jwtutil.JWTManager, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{AuthWith(manager), RequireGuild()}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"adapterId": ClaimsFrom(c).AdapterID})
	})
	r.GET("/guilds/:guildId", handlers...)
	return r
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	manager := jwtutil.NewJWTManager("secret", time.Hour)
	r := newGuildRouter(manager)

	scoped, err := manager.Generate("discord-bot", "g-1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"missing header", "/guilds/g-1", "", http.StatusUnauthorized},
		{"wrong scheme", "/guilds/g-1", "Token " + scoped, http.StatusUnauthorized},
		{"bad token", "/guilds/g-1", "Bearer nope", http.StatusUnauthorized},
		{"allowed guild", "/guilds/g-1", "Bearer " + scoped, http.StatusOK},
		{"other guild", "/guilds/g-2", "Bearer " + scoped, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRateLimitByAdapter(t *testing.T) {
	manager := jwtutil.NewJWTManager("secret", time.Hour)
	r := newGuildRouter(manager, RateLimit(ratelimit.NewRateLimiter(2, time.Minute), nil))

	a, _ := manager.Generate("adapter-a")
	b, _ := manager.Generate("adapter-b")

	assert.Equal(t, http.StatusOK, get(r, "/guilds/g", a).Code)
	w := get(r, "/guilds/g", a)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = get(r, "/guilds/g", a)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, get(r, "/guilds/g", b).Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, ratelimit.Info, error) {
	return false, ratelimit.Info{}, errors.New("redis down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := gin.New()
	r.GET("/", RateLimit(failingLimiter{}, IPKeyFunc), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/", "").Code)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://bot.example"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://bot.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://bot.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

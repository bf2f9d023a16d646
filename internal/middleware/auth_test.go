package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/libraryops/patron-blocks/internal/i18n"
	"github.com/libraryops/patron-blocks/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) (*gin.Engine, *bool) {
	called := false
	r := gin.New()
	r.Use(mw...)
	r.GET("/test", func(c *gin.Context) {
		called = true
		c.Status(http.StatusOK)
	})
	return r, &called
}

func TestNewAPIKeyAuth(t *testing.T) {
	t.Parallel()

	t.Run("filters out empty keys", func(t *testing.T) {
		t.Parallel()

		auth := NewAPIKeyAuth([]string{"key1", "", "key2", ""})
		assert.Len(t, auth.apiKeys, 2)
		assert.True(t, auth.apiKeys["key1"])
		assert.True(t, auth.apiKeys["key2"])
	})

	t.Run("handles empty key slice", func(t *testing.T) {
		t.Parallel()

		assert.Empty(t, NewAPIKeyAuth(nil).apiKeys)
	})
}

func TestAPIKeyAuth_Middleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		headerName string
		apiKey     string
		validKeys  []string
		wantStatus int
	}{
		{
			name:       "valid X-API-Key header",
			headerName: headerAPIKey,
			apiKey:     "valid-key-123",
			validKeys:  []string{"valid-key-123"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid Authorization Bearer header",
			headerName: headerAuth,
			apiKey:     "Bearer valid-key-456",
			validKeys:  []string{"valid-key-456"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "matches one of multiple valid keys",
			headerName: headerAPIKey,
			apiKey:     "key2",
			validKeys:  []string{"key1", "key2", "key3"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong key",
			headerName: headerAPIKey,
			apiKey:     "nope",
			validKeys:  []string{"key1"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing key",
			validKeys:  []string{"key1"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "authorization without bearer prefix",
			headerName: headerAuth,
			apiKey:     "Basic key1",
			validKeys:  []string{"key1"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no keys configured rejects everything",
			headerName: headerAPIKey,
			apiKey:     "anything",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, called := newRouter(NewAPIKeyAuth(tt.validKeys).Middleware())

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.headerName != "" {
				req.Header.Set(tt.headerName, tt.apiKey)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, *called)

			if tt.wantStatus == http.StatusUnauthorized {
				var resp models.ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, http.StatusUnauthorized, resp.Status)
				assert.Equal(t, "/test", resp.Path)
			}
		})
	}
}

func TestCapabilityAuth(t *testing.T) {
	t.Parallel()

	verifier := NewTokenVerifier("s3cret")
	valid, err := verifier.Sign(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "staff-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Permissions: []string{"ui-users.patron_blocks"},
	})
	require.NoError(t, err)

	expired, err := verifier.Sign(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "staff-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	require.NoError(t, err)

	noSubject, err := verifier.Sign(&Claims{Permissions: []string{"x"}})
	require.NoError(t, err)

	foreign, err := NewTokenVerifier("other").Sign(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "staff-1"},
	})
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid token", header: "Bearer " + valid, wantStatus: http.StatusOK},
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "expired token", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
		{name: "token without subject", header: "Bearer " + noSubject, wantStatus: http.StatusUnauthorized},
		{name: "wrong signing key", header: "Bearer " + foreign, wantStatus: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer not.a.token", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var subject string
			var caps Capabilities
			r := gin.New()
			r.Use(CapabilityAuth(verifier))
			r.GET("/test", func(c *gin.Context) {
				subject = GetSubject(c)
				caps = GetCapabilities(c)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set(headerAuth, tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "staff-1", subject)
				assert.True(t, caps.HasPermission("ui-users.patron_blocks"))
				assert.False(t, caps.HasPermission("ui-users.edit"))
			}
		})
	}
}

func TestTokenVerifier_Verify_Expired(t *testing.T) {
	verifier := NewTokenVerifier("s3cret")
	token, err := verifier.Sign(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "staff-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestGetCapabilities_WithoutAuth(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.False(t, GetCapabilities(c).HasPermission("anything"))
	assert.Empty(t, GetSubject(c))
}

func TestLocale(t *testing.T) {
	catalog := i18n.NewCatalog(language.English)

	tests := []struct {
		name   string
		header string
		want   string
		label  string
	}{
		{name: "german", header: "de-DE,de;q=0.9", want: "de", label: "Benutzersperren"},
		{name: "fallback", header: "ja", want: "en", label: "Patron blocks"},
		{name: "empty", header: "", want: "en", label: "Patron blocks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var label string
			r := gin.New()
			r.Use(Locale(catalog))
			r.GET("/test", func(c *gin.Context) {
				label = GetLocalizer(c, nil).Localize(i18n.MsgPanelLabel)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Accept-Language", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Header().Get("Content-Language"))
			assert.Equal(t, tt.label, label)
		})
	}
}

func TestRequestLogger_PropagatesRequestID(t *testing.T) {
	r, _ := newRouter(RequestLogger(), Metrics())

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

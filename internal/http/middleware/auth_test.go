package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func authRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.POST("/guarded", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestCronAuth_BearerSecret(t *testing.T) {
	r := authRouter(CronAuth("s3cret"))

	// No header
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/guarded", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header should be rejected, got %d", w.Code)
	}

	// Wrong secret
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer nope")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret should be rejected, got %d", w.Code)
	}

	// Wrong scheme
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/guarded", nil)
	req.Header.Set("Authorization", "Basic s3cret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("non-bearer scheme should be rejected, got %d", w.Code)
	}

	// Correct secret
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid secret should pass, got %d", w.Code)
	}
}

func TestCronAuth_EmptySecretDisablesCheck(t *testing.T) {
	r := authRouter(CronAuth(""))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/guarded", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("empty configured secret should admit everything, got %d", w.Code)
	}
}

func TestCronAuth_MarksRateBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CronAuth("s3cret"))
	var bypass bool
	r.POST("/guarded", func(c *gin.Context) {
		bypass = IsRateBypass(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	r.ServeHTTP(w, req)
	if !bypass {
		t.Fatalf("authenticated cron caller should bypass rate limiting")
	}
}

func TestAdminAuth_HeaderSecret(t *testing.T) {
	r := authRouter(AdminAuth("op-secret"))

	// Missing header
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/guarded", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing admin secret should be rejected, got %d", w.Code)
	}

	// Wrong secret
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
	req.Header.Set(HeaderAdminSecret, "guess")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong admin secret should be rejected, got %d", w.Code)
	}

	// Correct secret
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/guarded", nil)
	req.Header.Set(HeaderAdminSecret, "op-secret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid admin secret should pass, got %d", w.Code)
	}
}

func TestAdminAuth_EmptySecretLocksSurface(t *testing.T) {
	r := authRouter(AdminAuth(""))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
	req.Header.Set(HeaderAdminSecret, "")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unconfigured admin secret must lock the surface, got %d", w.Code)
	}
}

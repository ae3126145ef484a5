package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func corsEngine(allowed []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(CORS(allowed))
	engine.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	return engine
}

func corsGet(engine *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/ping", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestCORSEchoesAllowedOrigin(t *testing.T) {
	engine := corsEngine([]string{"https://app.example.com"})

	w := corsGet(engine, http.MethodGet, "https://app.example.com")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin = %q, want the origin echoed back", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "*" {
		t.Fatalf("wildcard must never be combined with credentials")
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("credentials header missing")
	}
	if w.Header().Get("Vary") != "Origin" {
		t.Fatalf("vary = %q", w.Header().Get("Vary"))
	}
}

func TestCORSRejectsUnlistedOrigin(t *testing.T) {
	engine := corsEngine([]string{"https://app.example.com"})

	w := corsGet(engine, http.MethodGet, "https://evil.example.com")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("allow-origin = %q, want no header for an unlisted origin", got)
	}
	if w.Code != http.StatusOK {
		t.Fatalf("request itself should still serve, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	engine := corsEngine(nil)

	w := corsGet(engine, http.MethodOptions, "https://anything.example.com")
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://anything.example.com" {
		t.Fatalf("empty allow list should echo any origin, got %q", got)
	}
}

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogMiddleware(), SecurityHeadersMiddleware(), BodySizeLimitMiddleware(16))
	r.POST("/echo", func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			Error(c, http.StatusRequestEntityTooLarge, "too large")
			return
		}
		Success(c, gin.H{"len": len(body)})
	})
	return r
}

func TestBodySizeLimit(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		chunk  bool
		status int
	}{
		{"small", "hello", false, http.StatusOK},
		{"declared too large", strings.Repeat("x", 32), false, http.StatusRequestEntityTooLarge},
		{"undeclared too large", strings.Repeat("x", 32), true, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString(tt.body))
			if tt.chunk {
				req.ContentLength = -1
			}
			w := httptest.NewRecorder()
			newTestRouter().ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, req)

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
		"Pragma":                 "no-cache",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestBodySizeLimitMessage(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("x", 32)))
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, req)
	if want := `{"error":"request body exceeds 16 bytes"}`; w.Body.String() != want {
		t.Errorf("body = %s, want %s", w.Body.String(), want)
	}
}

func TestJSONBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JSONBodyMiddleware())
	r.POST("/classify", func(c *gin.Context) { Success(c, gin.H{"ok": true}) })
	r.GET("/stats", func(c *gin.Context) { Success(c, gin.H{"ok": true}) })

	tests := []struct {
		name        string
		method      string
		body        string
		contentType string
		status      int
	}{
		{"json", http.MethodPost, `{"command":"ls"}`, "application/json", http.StatusOK},
		{"json with charset", http.MethodPost, `{}`, "application/json; charset=utf-8", http.StatusOK},
		{"form post", http.MethodPost, `command=ls`, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"text post", http.MethodPost, `{}`, "text/plain", http.StatusUnsupportedMediaType},
		{"missing type", http.MethodPost, `{}`, "", http.StatusUnsupportedMediaType},
		{"no body", http.MethodGet, "", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/classify"
			if tt.method == http.MethodGet {
				path = "/stats"
			}
			req := httptest.NewRequest(tt.method, path, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

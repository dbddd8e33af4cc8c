package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"carpool/internal/models"
	"carpool/internal/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		principal := GetPrincipal(c)
		c.String(http.StatusOK, principal.UserID.Hex())
	})
	r.GET("/", handlers...)
	return r
}

func token(t *testing.T, userID primitive.ObjectID, permissions ...string) string {
	t.Helper()
	tok, err := utils.GenerateAccessToken(userID, "user", "rider", permissions, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return tok
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()

	userID := primitive.NewObjectID()
	router := newRouter(AuthRequired(testSecret))

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"not bearer", token(t, userID), "", http.StatusUnauthorized},
		{"bad token", "Bearer nope", "", http.StatusUnauthorized},
		{"header", "Bearer " + token(t, userID), "", http.StatusOK},
		{"query", "", token(t, userID), http.StatusOK},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if tt.query != "" {
			req.URL.RawQuery = "token=" + tt.query
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != tt.want {
			t.Errorf("%s: expected status %d, got %d", tt.name, tt.want, w.Code)
		}
		if tt.want == http.StatusOK && w.Body.String() != userID.Hex() {
			t.Errorf("%s: expected principal %s, got %s", tt.name, userID.Hex(), w.Body.String())
		}
	}
}

func TestWebSocketAuthRefusesWithBare403(t *testing.T) {
	t.Parallel()

	router := newRouter(WebSocketAuth(testSecret))
	req := httptest.NewRequest(http.MethodGet, "/?token=garbage", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", w.Body.String())
	}
}

func TestPermissionRequired(t *testing.T) {
	t.Parallel()

	router := newRouter(AuthRequired(testSecret), PermissionRequired(models.PermissionModerateMessages))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, primitive.NewObjectID()))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 without permission, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, primitive.NewObjectID(), models.PermissionModerateMessages))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with permission, got %d", w.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Parallel()

	router := newRouter(RequestIDMiddleware())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated request id")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc" {
		t.Errorf("expected propagated request id, got %q", got)
	}
}

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/jimdaga/influencer-crm/internal/models"
	"github.com/jimdaga/influencer-crm/internal/negotiation"
	"github.com/markbates/goth"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestContextIdentity(t *testing.T) {
	var id ContextIdentity

	if _, err := id.ActorID(context.Background()); !errors.Is(err, negotiation.ErrUnauthenticated) {
		t.Errorf("expected unauthenticated, got %v", err)
	}

	actor, err := id.ActorID(WithActor(context.Background(), "12"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor != "12" {
		t.Errorf("expected actor 12, got %s", actor)
	}

	if actor, _ := SystemIdentity("system").ActorID(context.Background()); actor != "system" {
		t.Errorf("expected system, got %s", actor)
	}
}

func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(sessions.Sessions("session", cookie.NewStore([]byte("test-secret"))))
	r.GET("/login-as", func(c *gin.Context) {
		s := sessions.Default(c)
		s.Set(sessionUserID, uint(5))
		s.Save()
		c.Status(http.StatusOK)
	})
	protected := r.Group("/", RequireAuth())
	protected.GET("/api/me", func(c *gin.Context) {
		actor, err := ContextIdentity{}.ActorID(c.Request.Context())
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"actor": actor, "user_id": c.GetString("user_id")})
	})
	protected.GET("/dashboard", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRequireAuthRejectsAnonymous(t *testing.T) {
	r := newRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 for api request, got %d", w.Code)
	}
	if w.Body.String() != `{"error":"authentication required"}` {
		t.Errorf("unexpected body %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/auth/google" {
		t.Errorf("expected redirect to login, got %d %s", w.Code, w.Header().Get("Location"))
	}
}

func TestRequireAuthSetsActor(t *testing.T) {
	r := newRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login-as", nil))
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected session cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != `{"actor":"5","user_id":"5"}` {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestUpsertUser(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(&models.User{}, &models.AuthIdentity{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	gu := goth.User{Provider: "google", UserID: "g-1", Email: "sam@agency.com", Name: "Sam"}
	first, err := upsertUser(db, gu)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Role != models.RoleMember {
		t.Errorf("expected role member, got %s", first.Role)
	}

	gu.Name = "Sam R."
	second, err := upsertUser(db, gu)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same user, got %d and %d", first.ID, second.ID)
	}

	var users, identities int64
	db.Model(&models.User{}).Count(&users)
	db.Model(&models.AuthIdentity{}).Count(&identities)
	if users != 1 || identities != 1 {
		t.Errorf("expected 1 user and 1 identity, got %d and %d", users, identities)
	}

	var stored models.User
	db.First(&stored, first.ID)
	if stored.Name != "Sam R." {
		t.Errorf("expected updated name, got %s", stored.Name)
	}

	if _, err := upsertUser(db, goth.User{Provider: "google", UserID: "g-2"}); err == nil {
		t.Error("expected error without email")
	}
}

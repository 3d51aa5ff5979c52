package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/pointsheet/pointsheet-api/internal/models"
)

type staffDirectoryStub struct {
	staff map[string]*models.Staff
}

func (s *staffDirectoryStub) FindByUID(ctx context.Context, uid string) (*models.Staff, error) {
	member, ok := s.staff[uid]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return member, nil
}

func actorTestRouter(claims *models.JWTClaims, dir *staffDirectoryStub, captured *models.ActingContext) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, claims)
		c.Next()
	})
	router.Use(Actor(dir))
	router.GET("/", func(c *gin.Context) {
		acting, ok := ActingFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		*captured = acting
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestActorDefaultIdentity(t *testing.T) {
	claims := &models.JWTClaims{UID: "staff-1", SchoolID: "school-1", Roles: models.RoleList{models.RoleTeacher}}
	var acting models.ActingContext
	router := actorTestRouter(claims, &staffDirectoryStub{}, &acting)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if acting.ActorID != "staff-1" || acting.AsUserID != "staff-1" {
		t.Fatalf("expected actor and effective identity to match, got %+v", acting)
	}
	if acting.Impersonating {
		t.Fatal("expected no impersonation without the header")
	}
}

func TestActorAdminImpersonates(t *testing.T) {
	claims := &models.JWTClaims{UID: "admin-1", SchoolID: "school-1", Roles: models.RoleList{models.RoleAdmin}}
	dir := &staffDirectoryStub{staff: map[string]*models.Staff{
		"teacher-9": {UID: "teacher-9", SchoolID: "school-1", Roles: models.RoleList{models.RoleTeacher}},
	}}
	var acting models.ActingContext
	router := actorTestRouter(claims, dir, &acting)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActingAsHeader, "teacher-9")
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if acting.ActorID != "admin-1" || acting.AsUserID != "teacher-9" {
		t.Fatalf("expected split identities, got %+v", acting)
	}
	if acting.AsRole != models.RoleTeacher || !acting.Impersonating {
		t.Fatalf("expected effective teacher role, got %+v", acting)
	}
}

func TestActorNonAdminCannotImpersonate(t *testing.T) {
	claims := &models.JWTClaims{UID: "staff-1", SchoolID: "school-1", Roles: models.RoleList{models.RoleTeacher}}
	var acting models.ActingContext
	router := actorTestRouter(claims, &staffDirectoryStub{}, &acting)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActingAsHeader, "teacher-9")
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
}

func TestActorImpersonationStaysInSchool(t *testing.T) {
	claims := &models.JWTClaims{UID: "admin-1", SchoolID: "school-1", Roles: models.RoleList{models.RoleAdmin}}
	dir := &staffDirectoryStub{staff: map[string]*models.Staff{
		"teacher-9": {UID: "teacher-9", SchoolID: "school-2", Roles: models.RoleList{models.RoleTeacher}},
	}}
	var acting models.ActingContext
	router := actorTestRouter(claims, dir, &acting)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActingAsHeader, "teacher-9")
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestActorSelfHeaderIsNoOp(t *testing.T) {
	claims := &models.JWTClaims{UID: "staff-1", SchoolID: "school-1", Roles: models.RoleList{models.RoleTeacher}}
	var acting models.ActingContext
	router := actorTestRouter(claims, &staffDirectoryStub{}, &acting)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActingAsHeader, "staff-1")
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if acting.Impersonating {
		t.Fatal("acting as yourself is not impersonation")
	}
}

func TestRequireRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextActingKey, models.ActingAs("staff-1", "school-1", models.RoleList{models.RoleTeacher}))
		c.Next()
	})
	router.GET("/teachers", RequireRoles(models.RoleAdmin, models.RoleTeacher), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.GET("/admins", RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/teachers", nil))
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected teacher route to pass, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/admins", nil))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected admin route to deny teacher, got %d", recorder.Code)
	}
}

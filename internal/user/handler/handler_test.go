package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/bitfantasy/nimo-mes/internal/shared/client"
	"github.com/bitfantasy/nimo-mes/internal/testutil"
	"github.com/bitfantasy/nimo-mes/internal/user/entity"
	"github.com/bitfantasy/nimo-mes/internal/user/repository"
	"github.com/bitfantasy/nimo-mes/internal/user/service"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type userEnv struct {
	*testutil.TestEnv
	services *service.Services
}

func setupUserTest(t *testing.T) *userEnv {
	t.Helper()
	return setupUserTestWithCache(t, nil)
}

func setupUserTestWithCache(t *testing.T, rdb *redis.Client) *userEnv {
	t.Helper()
	db := testutil.SetupTestDB(t, &entity.User{}, &entity.UserRole{})

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, config.JWTConfig{
		Secret:            testutil.JWTSecret,
		AccessTokenExpire: time.Hour,
		Issuer:            "nimo-mes",
	}, rdb, zap.NewNop())

	if _, err := services.User.SeedAdmin(context.Background(), config.AdminConfig{
		Username: "admin",
		Password: "admin-pass-123",
		Email:    "admin@nimo.local",
	}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	router := testutil.SetupRouter()
	RegisterRoutes(router, NewHandlers(services), middleware.JWTAuth(testutil.JWTSecret))

	return &userEnv{
		TestEnv:  &testutil.TestEnv{DB: db, Router: router, T: t},
		services: services,
	}
}

func login(t *testing.T, env *userEnv, username, password string) service.LoginResult {
	t.Helper()
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/auth/login",
		map[string]string{"username": username, "password": password}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", username, w.Code, w.Body.String())
	}
	var result service.LoginResult
	testutil.DecodeData(t, w, &result)
	return result
}

func TestLoginAndVerify(t *testing.T) {
	env := setupUserTest(t)

	result := login(t, env, "admin", "admin-pass-123")
	if result.Token == "" || result.ExpiresIn != 3600 {
		t.Fatalf("unexpected login result: %+v", result)
	}
	if len(result.User.PermissionCodes) != 1 || result.User.PermissionCodes[0] != "*" {
		t.Fatalf("admin should carry *, got %v", result.User.PermissionCodes)
	}

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/auth/verify", nil, result.Token)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var id client.Identity
	testutil.DecodeData(t, w, &id)
	if id.Username != "admin" || len(id.Roles) != 1 || id.Roles[0] != entity.RoleAdmin {
		t.Fatalf("unexpected identity: %+v", id)
	}

	// token in body
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/auth/verify", map[string]string{"token": result.Token}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("verify body token: expected 200, got %d", w.Code)
	}

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/auth/verify", nil, "garbage")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", w.Code)
	}

	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/auth/me", nil, result.Token)
	if w.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := setupUserTest(t)

	for _, creds := range []map[string]string{
		{"username": "admin", "password": "wrong-password"},
		{"username": "nobody", "password": "whatever"},
	} {
		w := testutil.DoRequest(env.Router, http.MethodPost, "/api/auth/login", creds, "")
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", creds["username"], w.Code)
		}
	}

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/auth/login", map[string]string{"username": "admin"}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing password: expected 400, got %d", w.Code)
	}
}

func TestUserAdministration(t *testing.T) {
	env := setupUserTest(t)
	adminToken := login(t, env, "admin", "admin-pass-123").Token

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/users", map[string]interface{}{
		"username": "op1",
		"name":     "Operator One",
		"email":    "op1@nimo.local",
		"password": "op1-password",
		"roles":    []string{entity.RoleOperator},
	}, adminToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created entity.User
	testutil.DecodeData(t, w, &created)

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/users", map[string]interface{}{
		"username": "op1", "name": "Dup", "password": "another-pass", "roles": []string{entity.RoleViewer},
	}, adminToken)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/users", map[string]interface{}{
		"username": "op2", "name": "Bad", "password": "another-pass", "roles": []string{"root"},
	}, adminToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown role: expected 400, got %d", w.Code)
	}

	opToken := login(t, env, "op1", "op1-password").Token
	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/users", nil, opToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("operator listing users: expected 403, got %d", w.Code)
	}

	w = testutil.DoRequest(env.Router, http.MethodPut, "/api/users/"+created.ID,
		map[string]interface{}{"roles": []string{entity.RolePlanner}}, adminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// role change is visible through verify with the old token
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/auth/verify", nil, opToken)
	var id client.Identity
	testutil.DecodeData(t, w, &id)
	if len(id.Roles) != 1 || id.Roles[0] != entity.RolePlanner {
		t.Fatalf("expected planner role after update, got %v", id.Roles)
	}

	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/users?role=planner", nil, adminToken)
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if total := data["pagination"].(map[string]interface{})["total"].(float64); total != 1 {
		t.Fatalf("expected 1 planner, got %v", total)
	}

	w = testutil.DoRequest(env.Router, http.MethodDelete, "/api/users/"+created.ID, nil, adminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("disable: expected 200, got %d", w.Code)
	}
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/auth/verify", nil, opToken)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("disabled user verify: expected 401, got %d", w.Code)
	}
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/auth/login",
		map[string]string{"username": "op1", "password": "op1-password"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("disabled user login: expected 401, got %d", w.Code)
	}
}

func TestSeedAdminOnlyOnEmptyTable(t *testing.T) {
	env := setupUserTest(t)
	user, err := env.services.User.SeedAdmin(context.Background(), config.AdminConfig{
		Username: "second-admin",
		Password: "whatever-123",
	})
	if err != nil || user != nil {
		t.Fatalf("expected no-op seed, got user=%v err=%v", user, err)
	}
}

func TestRemoteAuthThroughClient(t *testing.T) {
	env := setupUserTest(t)
	token := login(t, env, "admin", "admin-pass-123").Token

	userSrv := httptest.NewServer(env.Router)
	defer userSrv.Close()

	authClient := client.NewAuthClient(userSrv.URL, 5*time.Second)
	id, err := authClient.Verify(context.Background(), token)
	if err != nil || id.Username != "admin" {
		t.Fatalf("verify through client: id=%+v err=%v", id, err)
	}
	if _, err := authClient.Verify(context.Background(), "garbage"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	downstream := testutil.SetupRouter()
	downstream.GET("/api/ping", middleware.RemoteAuth(authClient, nil, 0, zap.NewNop()),
		middleware.RequirePermission("production:read"),
		func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"user": c.GetString("username")}) })

	w := testutil.DoRequest(downstream, http.MethodGet, "/api/ping", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("downstream: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(downstream, http.MethodGet, "/api/ping", nil, "garbage")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("downstream bad token: expected 401, got %d", w.Code)
	}
}

func TestDisableDropsCachedRemoteAuth(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	env := setupUserTestWithCache(t, rdb)
	adminToken := login(t, env, "admin", "admin-pass-123").Token

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/users", map[string]interface{}{
		"username": "op-cache", "name": "Cached Operator", "password": "operator-123", "roles": []string{"operator"},
	}, adminToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("create user: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created entity.User
	testutil.DecodeData(t, w, &created)
	opToken := login(t, env, "op-cache", "operator-123").Token

	userSrv := httptest.NewServer(env.Router)
	defer userSrv.Close()

	downstream := testutil.SetupRouter()
	downstream.GET("/api/ping",
		middleware.RemoteAuth(client.NewAuthClient(userSrv.URL, 5*time.Second), rdb, time.Minute, zap.NewNop()),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := testutil.DoRequest(downstream, http.MethodGet, "/api/ping", nil, opToken); w.Code != http.StatusOK {
		t.Fatalf("first call: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if n, _ := rdb.Exists(context.Background(), "auth:user:"+created.ID).Result(); n != 1 {
		t.Fatalf("expected cached verification for %s", created.ID)
	}

	w = testutil.DoRequest(env.Router, http.MethodDelete, "/api/users/"+created.ID, nil, adminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("disable: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// well inside the cache ttl
	if w := testutil.DoRequest(downstream, http.MethodGet, "/api/ping", nil, opToken); w.Code != http.StatusUnauthorized {
		t.Fatalf("after disable: expected 401, got %d", w.Code)
	}
}

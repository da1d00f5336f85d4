package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/shared/response"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_mes"
	JWTSecret  = "nimo-mes-jwt-secret-test"
)

// TestEnv 测试环境
type TestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	T      *testing.T
}

// loadDotEnv loads .env from the module root, if present.
func loadDotEnv() {
	_, file, _, _ := runtime.Caller(0)
	for dir := filepath.Dir(file); ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			_ = godotenv.Load(filepath.Join(dir, ".env"))
			return
		}
		if filepath.Dir(dir) == dir {
			return
		}
	}
}

// baseDSN resolves the database through the same viper defaults and env
// bindings the services use.
func baseDSN() string {
	loadDotEnv()

	db := config.DatabaseConfig{Host: "127.0.0.1", Port: 5432, User: "nimo", DBName: "nimo_mes", SSLMode: "disable"}
	if cfg, err := config.Load(); err == nil {
		db = cfg.Database
	}
	if db.Password == "" {
		db.Password = "nimo123"
	}
	return db.DSN() + " connect_timeout=3"
}

// schemaFor derives a unique, identifier-safe schema name for t.
func schemaFor(t *testing.T) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '_'
	}, t.Name())
	if len(name) > 30 {
		name = name[:30]
	}
	return fmt.Sprintf("%s_%s_%d", TestSchema, name, time.Now().UnixNano()%1e9)
}

func openQuiet(dsn string, translate bool) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           translate,
	})
}

// execOnce runs one statement on a short-lived connection.
func execOnce(dsn, stmt string) error {
	db, err := openQuiet(dsn, false)
	if err != nil {
		return err
	}
	if sqlDB, _ := db.DB(); sqlDB != nil {
		defer sqlDB.Close()
	}
	return db.Exec(stmt).Error
}

// SetupTestDB 为每个测试创建独立 schema 并迁移模型，测试结束后删除。
// No reachable database, or SKIP_DB_TESTS, skips the test.
func SetupTestDB(t *testing.T, models ...interface{}) *gorm.DB {
	t.Helper()
	if os.Getenv("SKIP_DB_TESTS") != "" {
		t.Skip("SKIP_DB_TESTS set")
	}

	dsn := baseDSN()
	schema := schemaFor(t)
	if err := execOnce(dsn, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		t.Skipf("database unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = execOnce(dsn, "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
	})

	// search_path on the DSN so every pooled connection lands in the schema
	db, err := openQuiet(dsn+" search_path="+schema, true)
	if err != nil {
		t.Fatalf("connect test schema %s: %v", schema, err)
	}
	t.Cleanup(func() {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			sqlDB.Close()
		}
	})

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate test schema %s: %v", schema, err)
		}
	}
	return db
}

// SetupRouter 测试路由，与服务一致注册自定义校验器
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	response.RegisterValidators()
	r := gin.New()
	r.Use(middleware.RequestID(), gin.Recovery())
	return r
}

// AuthGroup mounts path behind local JWT verification with the test secret.
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken signs a day-long token with the test secret.
func GenerateTestToken(userID, username string, roles, permissions []string) string {
	now := time.Now()
	claims := middleware.JWTClaims{
		UserID:      userID,
		Username:    username,
		Name:        username,
		Email:       username + "@test.local",
		Roles:       append([]string{}, roles...),
		Permissions: append([]string{}, permissions...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    "nimo-mes",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(JWTSecret))
	if err != nil {
		panic(err)
	}
	return signed
}

// DefaultTestToken 管理员令牌
func DefaultTestToken() string {
	return GenerateTestToken("test-user-001", "test-admin", []string{"admin"}, []string{"*"})
}

// DoRequest sends body as JSON. An empty token sends no Authorization header.
func DoRequest(r http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// DecodeData decodes the envelope's data field into out.
func DecodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body=%s)", err, w.Body.String())
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data: %v (body=%s)", err, w.Body.String())
	}
}

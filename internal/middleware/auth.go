package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/bitfantasy/nimo-mes/internal/shared/client"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// JWTClaims JWT claims
type JWTClaims struct {
	UserID      string   `json:"uid"`
	Username    string   `json:"username"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"perms"`
	jwt.RegisteredClaims
}

// Identity converts the claims into the shape the verify endpoint returns.
func (c *JWTClaims) Identity() *client.Identity {
	return &client.Identity{
		ID:          c.UserID,
		Username:    c.Username,
		Name:        c.Name,
		Email:       c.Email,
		Roles:       c.Roles,
		Permissions: c.Permissions,
	}
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(tokenString, secret string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, apperr.Unauthorized("invalid or expired token")
	}
	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, apperr.Unauthorized("invalid token claims")
	}
	return claims, nil
}

// ExtractToken reads the bearer header, then the token cookie, then the
// token query parameter.
func ExtractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := c.Cookie("token"); err == nil && cookie != "" {
		return cookie
	}
	return c.Query("token")
}

func unauthorized(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"code":    code,
		"message": message,
	})
}

func setIdentity(c *gin.Context, token string, id *client.Identity) {
	c.Set("user_id", id.ID)
	c.Set("user_name", id.Name)
	c.Set("username", id.Username)
	c.Set("user_email", id.Email)
	c.Set("roles", id.Roles)
	c.Set("permissions", id.Permissions)
	c.Set("identity", id)

	ctx := client.WithToken(c.Request.Context(), token)
	ctx = client.WithRequestID(ctx, c.GetString("request_id"))
	c.Request = c.Request.WithContext(ctx)
}

// JWTAuth JWT认证中间件
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ExtractToken(c)
		if tokenString == "" {
			unauthorized(c, 40100, "Authorization is required")
			return
		}

		claims, err := ParseToken(tokenString, secret)
		if err != nil {
			unauthorized(c, 40102, "Invalid or expired token")
			return
		}

		c.Set("claims", claims)
		setIdentity(c, tokenString, claims.Identity())
		c.Next()
	}
}

// TokenVerifier resolves a token to a user. *client.AuthClient implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*client.Identity, error)
}

// RemoteAuth delegates token verification to the user service. Successful
// verifications are cached in redis (when rdb is non-nil) for ttl.
func RemoteAuth(verifier TokenVerifier, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		tokenString := ExtractToken(c)
		if tokenString == "" {
			unauthorized(c, 40100, "Authorization is required")
			return
		}

		ctx := c.Request.Context()
		key := verifyCacheKey(tokenString)

		if rdb != nil {
			if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
				var id client.Identity
				if json.Unmarshal(raw, &id) == nil {
					setIdentity(c, tokenString, &id)
					c.Next()
					return
				}
			} else if !errors.Is(err, redis.Nil) {
				logger.Warn("auth cache read failed", zap.Error(err))
			}
		}

		id, err := verifier.Verify(ctx, tokenString)
		if err != nil {
			if errors.Is(err, apperr.ErrUnauthorized) || errors.Is(err, apperr.ErrForbidden) {
				unauthorized(c, 40102, "Invalid or expired token")
				return
			}
			logger.Error("auth verification failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"code":    50001,
				"message": "upstream service error",
			})
			return
		}

		if rdb != nil && ttl > 0 {
			if err := cacheIdentity(ctx, rdb, key, id, ttl); err != nil {
				logger.Warn("auth cache write failed", zap.Error(err))
			}
		}

		setIdentity(c, tokenString, id)
		c.Next()
	}
}

func verifyCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "auth:verify:" + hex.EncodeToString(sum[:])
}

// userCacheIndex 记录某用户所有已缓存的校验结果 key
func userCacheIndex(userID string) string {
	return "auth:user:" + userID
}

// cacheIdentity stores id under key and indexes key by user so the entries
// can be dropped together. The index lives as long as its newest entry.
func cacheIdentity(ctx context.Context, rdb *redis.Client, key string, id *client.Identity, ttl time.Duration) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	idx := userCacheIndex(id.ID)
	pipe := rdb.TxPipeline()
	pipe.Set(ctx, key, raw, ttl)
	pipe.SAdd(ctx, idx, key)
	pipe.Expire(ctx, idx, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateUserAuth drops every cached remote verification of userID, so
// the next request of any of the user's tokens is verified again. A nil rdb
// is a no-op.
func InvalidateUserAuth(ctx context.Context, rdb *redis.Client, userID string) error {
	if rdb == nil {
		return nil
	}
	idx := userCacheIndex(userID)
	keys, err := rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return err
	}
	return rdb.Del(ctx, append(keys, idx)...).Err()
}

func hasAny(values []string, wanted string, wildcard string) bool {
	for _, v := range values {
		if v == wanted || v == wildcard {
			return true
		}
	}
	return false
}

// RequirePermission 权限检查中间件
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		permissions, exists := c.Get("permissions")
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"code":    40300,
				"message": "No permissions found",
			})
			return
		}

		perms, ok := permissions.([]string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"code":    40301,
				"message": "Invalid permissions format",
			})
			return
		}

		if hasAny(perms, permission, "*") {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"code":    40302,
			"message": "Permission denied: " + permission,
		})
	}
}

// RequireRole 角色检查中间件
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, _ := c.Get("roles")
		userRoles, ok := roles.([]string)
		if !ok || !hasAny(userRoles, role, "admin") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"code":    40312,
				"message": "Role required: " + role,
			})
			return
		}
		c.Next()
	}
}

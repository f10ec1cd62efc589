package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

const (
	RoleOperator = "operator"

	contextKeyUser = "auth_user"
	maxNameLength  = 64
)

// JWT 是由外部登入服務簽發的 access token
type JWT struct {
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthUser 是通過驗證的呼叫者
type AuthUser struct {
	ID       uuid.UUID
	Name     string
	Operator bool
}

// ParseAndValidateJWT 以 HS256 驗證 token，issuer 不為空時一併檢查
func ParseAndValidateJWT(tokenString string, secret []byte, issuer string) (*JWT, error) {
	const op = "ParseAndValidateJWT"
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &JWT{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%s: token is invalid", op)
	}
	claims, ok := token.Claims.(*JWT)
	if !ok {
		return nil, fmt.Errorf("%s: token claims are invalid", op)
	}
	return claims, nil
}

// sanitizeName 移除名稱中的 HTML 並限制長度，名稱會被廣播給所有觀看者
func sanitizeName(policy *bluemonday.Policy, name string) string {
	name = strings.TrimSpace(policy.Sanitize(name))
	if utf8.RuneCountInString(name) > maxNameLength {
		name = string([]rune(name)[:maxNameLength])
	}
	return name
}

// AuthMiddleware 驗證 Authorization: Bearer token，失敗時回傳 401
func (s *Server) AuthMiddleware() gin.HandlerFunc {
	logger := s.logger.With(slog.String("caller", "AuthMiddleware"))
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			abortWithError(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := ParseAndValidateJWT(tokenString, []byte(s.config.Auth.Secret), s.config.Auth.Issuer)
		if err != nil {
			logger.Debug("Fail to parse and validate JWT", slog.Any("error", err))
			abortWithError(c, http.StatusUnauthorized, "invalid token")
			return
		}
		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			logger.Debug("Invalid subject", slog.String("subject", claims.Subject))
			abortWithError(c, http.StatusUnauthorized, "invalid token subject")
			return
		}
		c.Set(contextKeyUser, AuthUser{
			ID:       userID,
			Name:     sanitizeName(s.htmlChecker, claims.Username),
			Operator: claims.Role == RoleOperator,
		})
		c.Next()
	}
}

var errNoUser = errors.New("no authenticated user in context")

func currentUser(c *gin.Context) (AuthUser, error) {
	v, ok := c.Get(contextKeyUser)
	if !ok {
		return AuthUser{}, errNoUser
	}
	user, ok := v.(AuthUser)
	if !ok {
		return AuthUser{}, errNoUser
	}
	return user, nil
}

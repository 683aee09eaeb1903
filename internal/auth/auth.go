package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const claimsKey contextKey = "auth.claims"

var (
	gSecret    []byte
	gAdminRole string
)

// Init инициализирует пакет секретом подписи и именем административной роли
func Init(cfg *Config) {
	gSecret = []byte(cfg.JWTSecret)
	gAdminRole = cfg.AdminRole
}

// Claims — проверенные утверждения из токена сервиса аккаунтов
type Claims struct {
	UserID      string
	DisplayName string
	Roles       []string
}

// HasRole проверяет наличие внешней роли в токене
func (c *Claims) HasRole(name string) bool {
	for _, r := range c.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// IsAdmin — есть ли у пользователя административная роль
func (c *Claims) IsAdmin() bool {
	return c.HasRole(gAdminRole)
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// VerifyToken разбирает и проверяет токен из заголовка Authorization
func VerifyToken(r *http.Request) (*Claims, error) {
	authToken := r.Header.Get("Authorization")
	if authToken == "" {
		return nil, fmt.Errorf("no authorization header")
	}
	authToken = strings.TrimPrefix(authToken, "Bearer ")

	var claims tokenClaims
	token, err := jwt.ParseWithClaims(authToken, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return gSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	return &Claims{
		UserID:      claims.Subject,
		DisplayName: claims.Name,
		Roles:       claims.Roles,
	}, nil
}

// Middleware кладёт проверенные утверждения в контекст запроса.
// Запросы без валидного токена проходят дальше как анонимные:
// решение о доступе принимает слой разрешений.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := VerifyToken(r)
		if err == nil {
			r = r.WithContext(context.WithValue(r.Context(), claimsKey, claims))
		}
		next.ServeHTTP(w, r)
	})
}

// FromContext возвращает утверждения запроса, nil для анонима
func FromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// UserID возвращает идентификатор пользователя запроса, пустую строку для анонима
func UserID(ctx context.Context) string {
	if c := FromContext(ctx); c != nil {
		return c.UserID
	}
	return ""
}

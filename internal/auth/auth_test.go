package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func init() {
	Init(&Config{JWTSecret: "test-secret", AdminRole: "admin"})
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyToken(t *testing.T) {
	signed := signToken(t, "test-secret", jwt.MapClaims{
		"sub":   "user-42",
		"name":  "Bob",
		"roles": []string{"staff", "admin"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signed)

	claims, err := VerifyToken(r)
	require.NoError(t, err)
	require.Equal(t, "user-42", claims.UserID)
	require.Equal(t, "Bob", claims.DisplayName)
	require.True(t, claims.HasRole("staff"))
	require.True(t, claims.IsAdmin())
}

func TestVerifyTokenRejectsBadInput(t *testing.T) {
	// Без заголовка
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := VerifyToken(r)
	require.Error(t, err)

	// Чужой секрет
	signed := signToken(t, "wrong-secret", jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	_, err = VerifyToken(r)
	require.Error(t, err)

	// Просроченный токен
	signed = signToken(t, "test-secret", jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	_, err = VerifyToken(r)
	require.Error(t, err)

	// Токен без субъекта
	signed = signToken(t, "test-secret", jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	_, err = VerifyToken(r)
	require.Error(t, err)
}

func TestMiddlewareAllowsAnonymous(t *testing.T) {
	var got *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	// Аноним проходит дальше без утверждений
	w := httptest.NewRecorder()
	Middleware(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Nil(t, got)
	require.Equal(t, "", UserID(httptest.NewRequest(http.MethodGet, "/", nil).Context()))

	// С валидным токеном утверждения попадают в контекст
	signed := signToken(t, "test-secret", jwt.MapClaims{
		"sub":  "user-42",
		"name": "Bob",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	w = httptest.NewRecorder()
	Middleware(next).ServeHTTP(w, r)
	require.NotNil(t, got)
	require.Equal(t, "user-42", got.UserID)
}

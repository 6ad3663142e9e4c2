package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-club-ticketing/internal/logger"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestSubjectFromJWT(t *testing.T) {
	sub, err := SubjectFromJWT(signed(t, jwt.MapClaims{"sub": "gate-op-7"}))
	require.NoError(t, err)
	assert.Equal(t, "gate-op-7", sub)

	_, err = SubjectFromJWT(signed(t, jwt.MapClaims{"name": "x"}))
	assert.Error(t, err)

	_, err = SubjectFromJWT("not-a-jwt")
	assert.Error(t, err)
}

func TestExtractTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ExtractTokenFromRequest(r)
	assert.ErrorIs(t, err, ErrNoToken)

	r.Header.Set("Authorization", "Basic abc")
	_, err = ExtractTokenFromRequest(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "bearer abc")
	tok, err := ExtractTokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestOperatorMiddleware(t *testing.T) {
	var seen string
	h := Operator(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = OperatorID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodPost, "/checkin", nil)
	r.Header.Set("Authorization", "Bearer "+signed(t, jwt.MapClaims{"sub": "gate-op-7"}))
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "gate-op-7", seen)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/checkin", nil))
	assert.Empty(t, seen)

	r = httptest.NewRequest(http.MethodPost, "/checkin", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Empty(t, seen)
}

package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthz_OKWithoutDB(t *testing.T) {
	h := &HealthHandler{}

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHealthz_PingsDB(t *testing.T) {
	pinged := false
	h := &HealthHandler{DB: pingerFunc(func(context.Context) error {
		pinged = true
		return nil
	})}

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, pinged)
}

func TestHealthz_DBDown(t *testing.T) {
	h := &HealthHandler{DB: pingerFunc(func(context.Context) error {
		return errors.New("connection refused")
	})}

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthz_HeadHasNoBody(t *testing.T) {
	h := &HealthHandler{}

	r := httptest.NewRequest(http.MethodHead, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

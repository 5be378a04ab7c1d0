package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestRegisterRoutes_ServesWidget(t *testing.T) {
	r := chi.NewRouter()
	RegisterRoutes(r)

	cases := map[string]string{
		"/":                `id="composer"`,
		"/static/chat.js":  "/api/chat",
		"/static/chat.css": ".messages",
	}
	for path, want := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.Contains(t, rec.Body.String(), want, path)
	}
}

func TestRegisterRoutes_MissingAsset(t *testing.T) {
	r := chi.NewRouter()
	RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/nope.js", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// Package web serves the browser chat widget.
package web

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
)

//go:embed static
var static embed.FS

func RegisterRoutes(r chi.Router) {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	files := http.FileServer(http.FS(sub))
	r.Get("/", files.ServeHTTP)
	r.Get("/static/*", http.StripPrefix("/static", files).ServeHTTP)
}

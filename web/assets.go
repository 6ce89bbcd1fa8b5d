package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

// Embed static assets
//
//go:embed static/*
var StaticAssets embed.FS

// Embed templates
//
//go:embed templates/*
var TemplateAssets embed.FS

// GetStaticFS returns the embedded static filesystem
func GetStaticFS() fs.FS {
	static, err := fs.Sub(StaticAssets, "static")
	if err != nil {
		panic(err)
	}
	return static
}

// GetTemplateFS returns the embedded template filesystem
func GetTemplateFS() fs.FS {
	templates, err := fs.Sub(TemplateAssets, "templates")
	if err != nil {
		panic(err)
	}
	return templates
}

// NewStaticHandler creates an HTTP handler for serving static assets
func NewStaticHandler() http.Handler {
	return http.FileServer(http.FS(GetStaticFS()))
}

// ParseTemplate parses the named page together with the shared layout.
func ParseTemplate(name string) (*template.Template, error) {
	return template.ParseFS(GetTemplateFS(), "base.html", name)
}

package main

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.tmpl static/*
var webAssetsFS embed.FS

// pageRenderer re-reads templates from disk on every render in development
// when the source tree is reachable, otherwise it uses the embedded copy.
type pageRenderer struct {
	sourceFS fs.FS
}

func newPageRenderer(env string) *pageRenderer {
	if root := devAssetRoot(env); root != "" {
		return &pageRenderer{sourceFS: os.DirFS(root)}
	}
	return &pageRenderer{sourceFS: webAssetsFS}
}

// devAssetRoot locates apps/web on disk whether the binary runs from the
// package directory or the repository root. Empty outside development or
// when neither holds the templates.
func devAssetRoot(env string) string {
	if env != "development" {
		return ""
	}
	for _, dir := range []string{".", filepath.Join("apps", "web")} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(templateLayoutPath))); err == nil {
			return dir
		}
	}
	return ""
}

func (r *pageRenderer) templatesForRender(contentTemplatePath string) (*template.Template, error) {
	templates, err := template.New("layout.tmpl").ParseFS(r.sourceFS, templateLayoutPath, templateMapPartial, contentTemplatePath)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return templates, nil
}

func staticFileSystemFS(env string) fs.FS {
	if root := devAssetRoot(env); root != "" {
		return os.DirFS(filepath.Join(root, "static"))
	}
	sub, err := fs.Sub(webAssetsFS, "static")
	if err != nil {
		panic(fmt.Errorf("static fs: %w", err))
	}
	return sub
}

func staticFileSystem(env string) http.FileSystem {
	return http.FS(staticFileSystemFS(env))
}

func (a *App) renderTemplate(c *gin.Context, status int, contentTemplatePath string, data any) {
	templates, err := a.pages.templatesForRender(contentTemplatePath)
	if err != nil {
		c.String(http.StatusInternalServerError, "template error: %v", err)
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	if executeErr := templates.ExecuteTemplate(c.Writer, "layout", data); executeErr != nil {
		a.log.Error("render template failed", "template", contentTemplatePath, "error", executeErr)
		if !c.Writer.Written() {
			c.String(http.StatusInternalServerError, "render failure")
		}
	}
}

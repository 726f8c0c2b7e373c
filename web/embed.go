// Package web embeds the browser dashboard and serves it as a static app.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed all:app/dist
var dashboardFS embed.FS

type Router interface {
	HandleFunc(pattern string, handler http.HandlerFunc)
	Mount(pattern string, handler http.Handler)
}

// DashboardApp is the plant dashboard served under /ui/.
func DashboardApp() (*WebApp, error) {
	return NewWebApp("dashboard", dashboardFS, "app/dist", "/ui/")
}

type WebApp struct {
	name    string
	l       *slog.Logger
	fs      fs.FS
	urlBase string
}

func NewWebApp(name string, app fs.FS, subDir string, urlBase string) (*WebApp, error) {
	subFS, err := fs.Sub(app, subDir)
	if err != nil {
		return nil, err
	}

	urlBase = "/" + strings.Trim(urlBase, "/") + "/"

	return &WebApp{
		name:    name,
		fs:      subFS,
		urlBase: urlBase,
		l:       slog.Default().With(slog.String("component", name)),
	}, nil
}

// URLBase is the path the app is mounted at, with both slashes.
func (wa *WebApp) URLBase() string { return wa.urlBase }

func (wa *WebApp) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		path = "index.html"
	}

	// exact file first, then the html and directory index forms
	for _, suffix := range []string{"", ".html", "/index.html"} {
		altPath := strings.TrimSuffix(path, "/") + suffix

		f, err := fs.Stat(wa.fs, altPath)
		if err != nil || f.IsDir() {
			continue
		}

		http.ServeFileFS(w, r, wa.fs, altPath)

		return
	}

	wa.l.Debug("file not found", slog.String("path", path))
	http.NotFound(w, r)
}

// Handler returns an http.Handler that serves the WebApp at the given path.
func (wa *WebApp) Handler(path string) http.Handler {
	return http.StripPrefix(path, wa)
}

// Register mounts the app on mux and redirects the bare base path to it.
func (wa *WebApp) Register(mux Router, l *slog.Logger) {
	wa.l = l.With(slog.String("app", wa.name), slog.String("urlBase", wa.urlBase), slog.String("component", "file-server"))
	wa.l.Info("registering web app")

	baseWithoutSlash := strings.TrimSuffix(wa.urlBase, "/")
	mux.Mount(baseWithoutSlash, wa.Handler(wa.urlBase))

	// registered after Mount so it replaces the mount's bare-path route
	mux.HandleFunc(baseWithoutSlash, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, wa.urlBase, http.StatusMovedPermanently)
	})
}

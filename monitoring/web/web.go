// Package web embeds the static assets of the monitoring dashboard.
package web

import (
	"embed"
	"net/http"
)

//go:embed index.html
var assets embed.FS

// GetAssets returns the dashboard file system.
func GetAssets() http.FileSystem {
	return http.FS(assets)
}

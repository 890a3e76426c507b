// Static frontend serving. Files are embedded via the root-level webui
// package, which can access the sibling web/ directory via go:embed.
package server

import (
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mzanin/switchmon/webui"
)

// RegisterStaticFiles mounts the embedded frontend on the gin engine.
// API routes registered before this take precedence. All unmatched routes
// fall back to index.html for SPA routing.
func RegisterStaticFiles(r *gin.Engine) {
	// Serve files from web/dist (production build) if they have real content,
	// otherwise fall back to web/ (development skeleton).
	distFS, err := fs.Sub(webui.FS, "web/dist")
	if err != nil {
		panic("embed: web/dist sub-fs failed: " + err.Error())
	}

	entries, _ := fs.ReadDir(distFS, ".")
	hasRealFiles := false
	for _, e := range entries {
		if e.Name() != ".gitkeep" {
			hasRealFiles = true
			break
		}
	}

	var staticFS http.FileSystem
	if hasRealFiles {
		staticFS = http.FS(distFS)
	} else {
		webRoot, _ := fs.Sub(webui.FS, "web")
		staticFS = http.FS(webRoot)
	}

	// SPA fallback: all unmatched routes return index.html.
	r.NoRoute(func(c *gin.Context) {
		f, err := staticFS.Open("index.html")
		if err != nil {
			c.String(http.StatusNotFound, "UI not found; build the frontend into webui/web/dist")
			return
		}
		defer f.Close()
		stat, _ := f.Stat()
		c.DataFromReader(http.StatusOK, stat.Size(), "text/html; charset=utf-8", f, nil)
	})
}

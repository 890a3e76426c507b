// Package webui carries the embedded dashboard assets. It sits at the
// module root so go:embed can reach the sibling web/ directory; the HTTP
// layer in internal/server mounts FS onto the gin engine.
package webui

import "embed"

// FS holds the web/ tree: web/dist is the production dashboard build,
// web/index.html the placeholder served when no build is present.
//
//go:embed web
var FS embed.FS

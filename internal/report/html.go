package report

import (
	"embed"
	"io/fs"
)

//go:embed static/index.html
var indexHTML []byte

//go:embed static/dashboard.html
var dashboardHTML []byte

//go:embed static/*.css static/*.js
var assetsFS embed.FS

// staticFS returns the embedded stylesheet and scripts
func staticFS() fs.FS {
	fsys, err := fs.Sub(assetsFS, "static")
	if err != nil {
		panic(err)
	}
	return fsys
}

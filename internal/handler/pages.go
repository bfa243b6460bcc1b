package handler

import (
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// PageHandler serves the reference site's HTML pages and assets from one directory
type PageHandler struct {
	dir string
}

// NewPageHandler creates a page handler rooted at dir
func NewPageHandler(dir string) *PageHandler {
	return &PageHandler{dir: dir}
}

// Page returns a handler serving one named file from the directory
func (h *PageHandler) Page(name string) gin.HandlerFunc {
	path := filepath.Join(h.dir, name)
	return func(c *gin.Context) {
		f, err := os.Open(path)
		if err != nil {
			respondError(c, http.StatusNotFound, "Not Found")
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			respondError(c, http.StatusNotFound, "Not Found")
			return
		}
		// c.File would redirect /index.html to ./
		http.ServeContent(c.Writer, c.Request, name, info.ModTime(), f)
	}
}

// Assets is the file system behind /static: no directory listings and no dotfiles
func (h *PageHandler) Assets() http.FileSystem {
	return publicFS{gin.Dir(h.dir, false)}
}

type publicFS struct {
	http.FileSystem
}

func (p publicFS) Open(name string) (http.File, error) {
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") {
			return nil, fs.ErrNotExist
		}
	}
	return p.FileSystem.Open(name)
}

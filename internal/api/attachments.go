package api

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/craftmd/internal/storage"
)

// AttachmentHandler serves staged attachments from the output vault so
// that image embeds in converted documents can be previewed while
// reviewing.
type AttachmentHandler struct {
	store storage.Provider
	dir   string
}

// NewAttachmentHandler serves files from dir, a vault-relative directory.
func NewAttachmentHandler(store storage.Provider, dir string) *AttachmentHandler {
	return &AttachmentHandler{store: store, dir: dir}
}

// resolve maps a request name onto a vault path. Embeds percent-encode
// spaces, so the name is unescaped once; it must then be a single path
// element.
func (h *AttachmentHandler) resolve(name string) (string, error) {
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid attachment name %q", name)
	}
	return h.store.Abs(path.Join(h.dir, name))
}

// ServeFile handles GET /attachments/{filename}.
func (h *AttachmentHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.resolve(chi.URLParam(r, "filename"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, abs)
}

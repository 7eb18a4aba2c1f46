// Package deck supplies presentation content to the HTTP layer, either from
// a local directory or by proxying a remote base URL.
package deck

import (
	"errors"
	"net/http"
)

// ErrReadOnly is returned by SaveConfig when the deck source cannot be
// edited (remote decks).
var ErrReadOnly = errors.New("deck: source is read-only")

// Source is a deck content provider. Serve handles everything outside the
// reserved /_/ namespace.
type Source interface {
	// Serve answers a request for deck content, injecting the presenter
	// client script into HTML responses.
	Serve(w http.ResponseWriter, r *http.Request)
	// Config loads the deck's presenter config, or nil if none exists.
	Config() (map[string]any, error)
	// SaveConfig persists a replacement presenter config.
	SaveConfig(config map[string]any) error
	// Notes returns the speaker notes for a slide hash, or empty when the
	// slide has none.
	Notes(hash string) (string, error)
	// Local reports whether the deck is an editable local directory.
	// Questions and config mutation are only available for local decks.
	Local() bool
}

var mimeTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".txt":  "text/plain; charset=utf-8",
	".pdf":  "application/pdf",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".woff":  "font/woff",
	".woff2": "font/woff2",
}

func mimeTypeFor(ext string) string {
	if t, ok := mimeTypes[ext]; ok {
		return t
	}
	return "application/octet-stream"
}

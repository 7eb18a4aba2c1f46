package deck

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

const configFileName = "presenter.json"

// Dir serves a deck from a local directory with path-safety resolution.
type Dir struct {
	root string
}

func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("deck: %s is not a directory", abs)
	}
	return &Dir{root: abs}, nil
}

func (d *Dir) Root() string { return d.root }

func (d *Dir) Local() bool { return true }

// resolve maps a request path into the deck root, rejecting anything that
// escapes it. Directories resolve to their index.html.
func (d *Dir) resolve(requestPath string) (string, error) {
	cleaned := path.Clean("/" + requestPath)
	full := filepath.Join(d.root, filepath.FromSlash(cleaned))
	if full != d.root && !strings.HasPrefix(full, d.root+string(filepath.Separator)) {
		return "", fs.ErrNotExist
	}
	if info, err := os.Stat(full); err == nil && info.IsDir() {
		full = filepath.Join(full, "index.html")
	}
	return full, nil
}

func (d *Dir) Serve(w http.ResponseWriter, r *http.Request) {
	filePath, err := d.resolve(r.URL.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	w.Header().Set("Content-Type", mimeTypeFor(ext))
	if r.Method == http.MethodHead {
		return
	}
	if isHTMLPath(filePath) {
		_, _ = w.Write(InjectScript(data))
		return
	}
	_, _ = w.Write(data)
}

func (d *Dir) Config() (map[string]any, error) {
	data, err := os.ReadFile(filepath.Join(d.root, configFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var config map[string]any
	if err := json.Unmarshal(data, &config); err != nil {
		// A broken presenter.json behaves like an absent one.
		return nil, nil
	}
	return config, nil
}

func (d *Dir) SaveConfig(config map[string]any) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(d.root, configFileName), append(data, '\n'), 0o644)
}

func (d *Dir) Notes(hash string) (string, error) {
	for _, candidate := range notesCandidates(hash) {
		data, err := os.ReadFile(filepath.Join(d.root, "notes", candidate+".md"))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", nil
}

var (
	notesSuffixRe = regexp.MustCompile(`~(next|prev)$`)
	numericStemRe = regexp.MustCompile(`^\d+$`)
)

// notesCandidates turns a slide hash into the note file names to try: the
// sanitized hash itself, then its leading numeric stem ("3--detail" → "3").
func notesCandidates(hash string) []string {
	trimmed := strings.TrimPrefix(hash, "#")
	trimmed = notesSuffixRe.ReplaceAllString(trimmed, "")
	trimmed = strings.ReplaceAll(trimmed, "/", "--")
	if trimmed == "" || strings.Contains(trimmed, "..") {
		return nil
	}
	candidates := []string{trimmed}
	stem := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == '-' || r == '.'
	})
	if len(stem) > 0 && stem[0] != trimmed && numericStemRe.MatchString(stem[0]) {
		candidates = append(candidates, stem[0])
	}
	return candidates
}

package deck

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// Remote proxies a deck hosted at an HTTP(S) base URL. The deck is
// read-only: questions and config mutation are unavailable.
type Remote struct {
	base   *url.URL
	client *http.Client
}

func NewRemote(rawURL string) (*Remote, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("deck: unsupported URL scheme %q", base.Scheme)
	}
	if !strings.HasSuffix(base.Path, "/") && path.Ext(base.Path) == "" {
		base.Path += "/"
	}
	return &Remote{
		base:   base,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (d *Remote) Local() bool { return false }

func (d *Remote) Base() string { return d.base.String() }

// target maps a request path onto the remote base.
func (d *Remote) target(requestPath, rawQuery string) *url.URL {
	basePath := d.base.Path
	if !strings.HasSuffix(basePath, "/") {
		basePath = path.Dir(basePath) + "/"
	}
	rel := requestPath
	switch {
	case rel == strings.TrimSuffix(basePath, "/"):
		rel = ""
	case strings.HasPrefix(rel, basePath):
		rel = rel[len(basePath):]
	default:
		rel = strings.TrimLeft(rel, "/")
	}
	ref := &url.URL{Path: rel, RawQuery: rawQuery}
	return d.base.ResolveReference(ref)
}

func (d *Remote) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	upstreamURL := d.target(r.URL.Path, r.URL.RawQuery)

	req, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL.String(), nil)
	if err != nil {
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	resp, err := d.client.Do(req)
	if err != nil {
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mimeTypeFor(strings.ToLower(path.Ext(upstreamURL.Path)))
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return
	}

	if strings.Contains(contentType, "text/html") {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return
		}
		_, _ = w.Write(InjectScript(body))
		return
	}
	_, _ = io.Copy(w, resp.Body)
}

func (d *Remote) fetchText(ref string) (string, bool) {
	u := d.base.ResolveReference(&url.URL{Path: ref})
	resp, err := d.client.Get(u.String())
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false
	}
	return string(body), true
}

func (d *Remote) Config() (map[string]any, error) {
	text, ok := d.fetchText(configFileName)
	if !ok {
		return nil, nil
	}
	var config map[string]any
	if err := json.Unmarshal([]byte(text), &config); err != nil {
		return nil, nil
	}
	return config, nil
}

func (d *Remote) SaveConfig(map[string]any) error { return ErrReadOnly }

func (d *Remote) Notes(hash string) (string, error) {
	for _, candidate := range notesCandidates(hash) {
		if text, ok := d.fetchText("notes/" + candidate + ".md"); ok {
			return text, nil
		}
	}
	return "", nil
}

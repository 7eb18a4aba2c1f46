package deck

import (
	"bytes"
	"strings"
)

// ScriptTag is appended to every served HTML page so plain slide decks join
// the sync hub without modification.
const ScriptTag = `<script src="/_/client/injected.js"></script>`

// InjectScript inserts the client script tag before </body> (falling back to
// </html>, then plain append). Matching is case-insensitive and uses the last
// occurrence so nested markup in strings does not confuse it.
func InjectScript(html []byte) []byte {
	if len(html) == 0 {
		return html
	}
	lower := bytes.ToLower(html)
	if idx := bytes.LastIndex(lower, []byte("</body>")); idx != -1 {
		return spliceAt(html, idx)
	}
	if idx := bytes.LastIndex(lower, []byte("</html>")); idx != -1 {
		return spliceAt(html, idx)
	}
	out := make([]byte, 0, len(html)+len(ScriptTag))
	out = append(out, html...)
	return append(out, ScriptTag...)
}

func spliceAt(html []byte, idx int) []byte {
	out := make([]byte, 0, len(html)+len(ScriptTag))
	out = append(out, html[:idx]...)
	out = append(out, ScriptTag...)
	return append(out, html[idx:]...)
}

func isHTMLPath(p string) bool {
	return strings.HasSuffix(strings.ToLower(p), ".html") || strings.HasSuffix(strings.ToLower(p), ".htm")
}

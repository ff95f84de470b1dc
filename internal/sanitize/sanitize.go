// Package sanitize escapes untrusted visitor text before it enters shared
// room state or is rendered back out.
package sanitize

import "html"

// Clean HTML-escapes text coming from a visitor or a remote peer. Empty
// input stays empty. Escaping already-escaped text is harmless; callers
// may sanitize defensively at every boundary.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	return html.EscapeString(text)
}

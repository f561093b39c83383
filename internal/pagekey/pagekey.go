// Package pagekey derives the key used to group max-scroll state per page.
package pagekey

import (
	"net/url"
	"strings"
)

// Resolve returns the page key for rawURL: the URL path, plus "?query" when
// ignoreQuery is false and the URL carries one. Fragments never take part.
// Input that cannot be parsed resolves to "/".
func Resolve(rawURL string, ignoreQuery bool) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "/"
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if ignoreQuery || u.RawQuery == "" {
		return path
	}
	return path + "?" + u.RawQuery
}

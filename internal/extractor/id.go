// SPDX-License-Identifier: MIT

package extractor

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// idPattern matches a bare video identifier: exactly 11 characters from
// the URL-safe base64 alphabet.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ErrInvalidID is wrapped by ParseID failures.
var ErrInvalidID = fmt.Errorf("invalid video identifier")

// ParseID accepts either a bare 11-character identifier or a full watch
// URL (watch?v=, youtu.be/, shorts/, embed/) and returns the identifier.
func ParseID(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidID)
	}

	if idPattern.MatchString(s) {
		return s, nil
	}

	if id := idFromURL(s); id != "" {
		return id, nil
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidID, s)
}

func idFromURL(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if v := u.Query().Get("v"); idPattern.MatchString(v) {
			return v
		}
		for _, prefix := range []string{"/shorts/", "/embed/", "/live/"} {
			if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
				id := strings.SplitN(rest, "/", 2)[0]
				if idPattern.MatchString(id) {
					return id
				}
			}
		}
	case "youtu.be":
		id := strings.TrimPrefix(u.Path, "/")
		id = strings.SplitN(id, "/", 2)[0]
		if idPattern.MatchString(id) {
			return id
		}
	}

	return ""
}

// WatchURL returns the canonical watch URL for an identifier.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

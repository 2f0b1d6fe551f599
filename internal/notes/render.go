// SPDX-License-Identifier: MIT

package notes

import (
	"strings"
	"unicode"

	"github.com/russross/blackfriday/v2"
	"golang.org/x/text/unicode/norm"
)

// RenderMarkdown converts a Markdown summary into the HTML the note store
// accepts.
func RenderMarkdown(md string) string {
	html := blackfriday.Run([]byte(md))
	return strings.TrimSpace(string(html))
}

// NormalizeTitle returns an NFC-normalized title with control characters
// and surrounding whitespace stripped. Titles come from remote metadata
// and occasionally carry decomposed unicode or stray controls.
func NormalizeTitle(title string) string {
	normalized := norm.NFC.String(title)
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, normalized)
	return strings.TrimSpace(cleaned)
}

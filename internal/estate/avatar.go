package estate

import (
	"encoding/base64"
	"fmt"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

var avatarColors = []string{"#0061FF", "#00A86B", "#F75555", "#FF9C01", "#7B61FF", "#191D31"}

// initials returns the upper-cased first letters of the first and last words
// of name, or "?" when name has no letters.
func initials(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return "?"
	}
	first, _ := utf8.DecodeRuneInString(words[0])
	out := string(unicode.ToUpper(first))
	if len(words) > 1 {
		last, _ := utf8.DecodeRuneInString(words[len(words)-1])
		out += string(unicode.ToUpper(last))
	}
	return out
}

// initialsAvatar renders the initials of name on a colored square and returns
// it as an SVG data URI. The color is stable per name.
func initialsAvatar(name string) string {
	color := avatarColors[xxhash.Sum64String(name)%uint64(len(avatarColors))]
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="100" height="100">`+
		`<rect width="100" height="100" fill="%s"/>`+
		`<text x="50" y="50" dy=".35em" text-anchor="middle" font-family="sans-serif" font-size="40" fill="#FFFFFF">%s</text>`+
		`</svg>`, color, html.EscapeString(initials(name)))
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

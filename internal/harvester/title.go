package harvester

import (
	"net/url"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// deriveTitleFromLocator builds a readable title from the last path segment of
// a locator. Used when a page carries no title or heading markup.
func deriveTitleFromLocator(locator string) string {
	parsed, err := url.Parse(locator)
	if err != nil {
		return "Untitled"
	}
	segment := path.Base(parsed.Path)
	if segment == "." || segment == "/" {
		segment = parsed.Host
	} else {
		segment = strings.TrimSuffix(segment, path.Ext(segment))
	}

	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range segment {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.' || r == '%':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return "Untitled"
	}
	return cases.Title(language.Und).String(title)
}

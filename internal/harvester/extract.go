package harvester

import (
	"html"
	"regexp"
	"strings"
)

var (
	titleTagPattern   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	headingPattern    = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	paragraphPattern  = regexp.MustCompile(`(?is)<p[^>]*>(.*?)</p>`)
	scriptPattern     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	stylePattern      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	tagPattern        = regexp.MustCompile(`(?s)<[^>]*>`)
	anchorPattern     = regexp.MustCompile(`(?is)<a\s[^>]*href\s*=\s*["']([^"']+)["'][^>]*>(.*?)</a>`)
	relNextPattern    = regexp.MustCompile(`(?is)<(?:a|link)\s[^>]*rel\s*=\s*["']next["'][^>]*>`)
	hrefAttrPattern   = regexp.MustCompile(`(?is)href\s*=\s*["']([^"']+)["']`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// ExtractTitle pulls a page title, preferring the first h1 heading over the
// document title element.
func ExtractTitle(page string) string {
	if match := headingPattern.FindStringSubmatch(page); match != nil {
		if title := cleanFragment(match[1]); title != "" {
			return title
		}
	}
	if match := titleTagPattern.FindStringSubmatch(page); match != nil {
		return cleanFragment(match[1])
	}
	return ""
}

// ExtractBody collects the text of every paragraph element, one paragraph
// per blank-line-separated block. Script and style content is stripped first
// so inline code never leaks into the body.
func ExtractBody(page string) string {
	page = scriptPattern.ReplaceAllString(page, "")
	page = stylePattern.ReplaceAllString(page, "")

	var paragraphs []string
	for _, match := range paragraphPattern.FindAllStringSubmatch(page, -1) {
		if text := cleanFragment(match[1]); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// ExtractNextLink finds the link to the following page. A rel="next" anchor
// or link element wins; otherwise the first anchor whose text reads like a
// next-chapter link is used. Returns the raw href, possibly relative.
func ExtractNextLink(page string) string {
	if match := relNextPattern.FindString(page); match != "" {
		if href := hrefAttrPattern.FindStringSubmatch(match); href != nil {
			return strings.TrimSpace(href[1])
		}
	}
	for _, match := range anchorPattern.FindAllStringSubmatch(page, -1) {
		text := strings.ToLower(cleanFragment(match[2]))
		if text == "next" || strings.HasPrefix(text, "next ") || strings.HasSuffix(text, " next") ||
			strings.Contains(text, "next chapter") || strings.Contains(text, "next page") {
			return strings.TrimSpace(match[1])
		}
	}
	return ""
}

func cleanFragment(fragment string) string {
	text := tagPattern.ReplaceAllString(fragment, " ")
	text = html.UnescapeString(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

package crawler

import "strings"

// ValidateCSSSelector reports whether a selector is syntactically usable.
// Crawled pages produce class names like "3col" or "404-page" that are valid
// HTML but illegal CSS; catching those here lets callers fall back to XPath
// instead of getting a querySelector exception mid-action.
func ValidateCSSSelector(selector string) bool {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return false
	}

	// A leading digit is only legal inside a pseudo-class argument.
	if selector[0] >= '0' && selector[0] <= '9' {
		return false
	}
	for _, prefix := range []string{".", "#"} {
		for _, part := range strings.Split(selector, " ") {
			if rest, ok := strings.CutPrefix(part, prefix); ok && rest != "" && rest[0] >= '0' && rest[0] <= '9' {
				return false
			}
		}
	}

	var brackets, parens int
	for _, r := range selector {
		switch r {
		case '[':
			brackets++
		case ']':
			brackets--
		case '(':
			parens++
		case ')':
			parens--
		}
		if brackets < 0 || parens < 0 {
			return false
		}
	}
	if brackets != 0 || parens != 0 {
		return false
	}

	for _, r := range selector {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			continue
		}
		switch r {
		case '.', '#', ' ', '>', '+', '~', '*', ':', '[', ']', '(', ')',
			'=', '"', '\'', '-', '_', ',', '^', '$', '|', '\\':
			continue
		}
		if r > 127 { // escaped unicode in class names
			continue
		}
		return false
	}
	return true
}

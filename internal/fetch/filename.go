package fetch

import (
	"regexp"
	"strings"
)

const maxTitleLen = 80

var (
	unsafeRe     = regexp.MustCompile(`[\\/:*?"<>|{}]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Filename returns the stored-file naming convention for an entry:
// "{key} - {title}.pdf" with filesystem-unsafe characters stripped and the
// title truncated to keep paths reasonable. Falls back to "{key}.pdf".
func Filename(key, title string) string {
	if key == "" {
		key = "unknown"
	}
	title = unsafeRe.ReplaceAllString(title, "")
	title = strings.TrimSpace(whitespaceRe.ReplaceAllString(title, " "))
	if title == "" {
		return key + ".pdf"
	}
	if len(title) > maxTitleLen {
		title = strings.TrimRight(title[:maxTitleLen], " ")
	}
	return key + " - " + title + ".pdf"
}

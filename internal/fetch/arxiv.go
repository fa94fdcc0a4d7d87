package fetch

import (
	"regexp"
	"strings"

	"github.com/bibkeep/bibkeep/internal/bib"
)

// arXiv identifiers come from either the registered DOI namespace
// (10.48550/arXiv.<id>) or an arxiv.org abs/pdf URL.
var (
	arxivDOIRe = regexp.MustCompile(`(?i)^10\.48550/arxiv\.(.+)$`)
	arxivURLRe = regexp.MustCompile(`(?i)arxiv\.org/(?:abs|pdf)/(.+?)(?:v\d+)?(?:\.pdf)?$`)
)

// DefaultArxivBase is the arXiv host PDFs are fetched from.
const DefaultArxivBase = "https://arxiv.org"

// arxivID extracts an arXiv identifier from an entry's DOI or URL, or "".
func arxivID(e *bib.Entry) string {
	if doi := strings.TrimSpace(e.DOI()); doi != "" {
		if m := arxivDOIRe.FindStringSubmatch(doi); m != nil {
			return m[1]
		}
	}
	if url := strings.TrimSpace(e.URL()); url != "" {
		if m := arxivURLRe.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	return ""
}

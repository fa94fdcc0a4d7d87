package fetch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/bibkeep/bibkeep/internal/bib"
	"github.com/bibkeep/bibkeep/internal/events"
)

// doiRe matches DOIs: 10.<registrant>/<suffix>.
var doiRe = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

// Linked records one download-directory PDF matched to an entry.
type Linked struct {
	Key  string `json:"key"`
	Path string `json:"path"` // final stored path under the base directory
}

// ScanDownloads inspects PDFs in the download directory, extracts a DOI from
// their first pages and matches it against entries that lack a file link.
// Matched files move into the base directory under the canonical filename and
// are linked onto their entries.
func (f *Fetcher) ScanDownloads(c *bib.Collection, downloadDir string) ([]Linked, error) {
	if downloadDir == "" || f.cfg.BaseDir == "" {
		return nil, fmt.Errorf("download and destination directories must be configured")
	}
	paths, err := filepath.Glob(filepath.Join(downloadDir, "*.pdf"))
	if err != nil {
		return nil, fmt.Errorf("listing downloads: %w", err)
	}
	sort.Strings(paths)

	byDOI := make(map[string]*bib.Entry)
	for _, e := range c.Entries() {
		if e.FileLink() == "" && e.DOI() != "" {
			byDOI[NormalizeDOI(e.DOI())] = e
		}
	}
	if len(byDOI) == 0 {
		return nil, nil
	}

	var linked []Linked
	for _, path := range paths {
		doi, err := extractDOI(path)
		if err != nil || doi == "" {
			continue // unreadable or DOI-less PDFs are simply not matches
		}
		e, ok := byDOI[NormalizeDOI(doi)]
		if !ok {
			continue
		}
		dest := filepath.Join(f.cfg.BaseDir, Filename(e.Key, e.Title()))
		if _, err := os.Stat(dest); err == nil && !f.cfg.Overwrite {
			continue
		}
		if err := movePDF(path, dest); err != nil {
			continue
		}
		e.Set("file", bib.FormatFileLink(dest, f.cfg.BaseDir))
		c.Dirty = true
		delete(byDOI, NormalizeDOI(doi))
		linked = append(linked, Linked{Key: e.Key, Path: dest})
		f.bus.Publish(events.FetchCompleted{
			Key:    e.Key,
			Source: SourceDownloads,
			Status: string(StatusSuccess),
			Path:   dest,
		})
	}
	return linked, nil
}

// extractDOI searches the first pages of a PDF for a DOI pattern.
func extractDOI(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	maxPages := 3
	if r.NumPage() < maxPages {
		maxPages = r.NumPage()
	}
	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, m := range doiRe.FindAllString(text, -1) {
			m = strings.TrimRight(m, ".,;:)")
			if len(m) > 7 { // "10.x/y" at minimum
				return m, nil
			}
		}
	}
	return "", nil
}

// NormalizeDOI strips resolver prefixes and lower-cases a DOI for comparison.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, prefix := range []string{
		"https://doi.org/", "http://doi.org/", "doi.org/",
		"https://dx.doi.org/", "http://dx.doi.org/", "dx.doi.org/",
		"DOI:", "doi:",
	} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return strings.ToLower(doi)
}

// movePDF renames src to dest, copying across filesystems when rename fails.
func movePDF(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.CreateTemp(filepath.Dir(dest), ".bibkeep-*.pdf.part")
	if err != nil {
		return err
	}
	tmpName := out.Name()
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmpName)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Remove(src)
}

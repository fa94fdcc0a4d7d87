// Package crossref fetches bibliographic metadata by DOI from the Crossref
// REST API and maps it onto bibliography entries.
package crossref

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bibkeep/bibkeep/internal/bib"
	"github.com/bibkeep/bibkeep/internal/citekey"
)

const (
	// BaseURL is the Crossref REST API base URL.
	BaseURL = "https://api.crossref.org"

	// RateLimit stays inside Crossref's polite-pool guidance.
	RateLimit = 2.0

	defaultTimeout = 30 * time.Second
)

// Errors returned by the client.
var (
	ErrNotFound        = errors.New("DOI not found in Crossref")
	ErrInvalidResponse = errors.New("invalid response from Crossref")
)

// Client is a rate-limited Crossref API client. Supplying a mailto address
// routes requests through Crossref's polite pool.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	mailto     string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// NewClient creates a Crossref client identified by mailto (may be empty).
func NewClient(mailto string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    BaseURL,
		mailto:     mailto,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// work is the subset of a Crossref work record we consume.
type work struct {
	Type           string     `json:"type"`
	Title          []string   `json:"title"`
	ContainerTitle []string   `json:"container-title"`
	Author         []author   `json:"author"`
	Issued         dateParts  `json:"issued"`
	PublishedPrint *dateParts `json:"published-print"`
	Volume         string     `json:"volume"`
	Issue          string     `json:"issue"`
	Page           string     `json:"page"`
	Publisher      string     `json:"publisher"`
	URL            string     `json:"URL"`
	Abstract       string     `json:"abstract"`
}

type author struct {
	Family string `json:"family"`
	Given  string `json:"given"`
}

type dateParts struct {
	DateParts [][]int `json:"date-parts"`
}

func (d *dateParts) year() string {
	if d == nil || len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return ""
	}
	return strconv.Itoa(d.DateParts[0][0])
}

// entryTypes maps Crossref work types to bibliography entry types.
var entryTypes = map[string]string{
	"journal-article":     "article",
	"proceedings-article": "inproceedings",
	"book":                "book",
	"book-chapter":        "incollection",
	"dissertation":        "phdthesis",
	"report":              "techreport",
	"dataset":             "misc",
	"posted-content":      "misc",
}

// Work fetches the metadata for a DOI and builds an entry from it. The key is
// the canonical citation key derived from the mapped fields; uniqueness
// within a collection is the caller's concern.
func (c *Client) Work(ctx context.Context, doi string) (*bib.Entry, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + "/works/" + url.PathEscape(doi)
	if c.mailto != "" {
		u += "?mailto=" + url.QueryEscape(c.mailto)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crossref lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, doi)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("crossref lookup: HTTP %d", resp.StatusCode)
	}

	var wrapper struct {
		Message work `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return buildEntry(doi, &wrapper.Message), nil
}

func buildEntry(doi string, w *work) *bib.Entry {
	entryType, ok := entryTypes[w.Type]
	if !ok {
		entryType = "misc"
	}
	e := &bib.Entry{Type: entryType}

	if len(w.Title) > 0 {
		e.Set("title", w.Title[0])
	}
	if names := formatAuthors(w.Author); names != "" {
		e.Set("author", names)
	}
	year := w.PublishedPrint.year()
	if year == "" {
		year = w.Issued.year()
	}
	e.Set("year", year)
	if len(w.ContainerTitle) > 0 {
		e.Set("journal", w.ContainerTitle[0])
	}
	e.Set("doi", doi)
	e.Set("url", w.URL)
	e.Set("volume", w.Volume)
	e.Set("number", w.Issue)
	e.Set("pages", w.Page)
	e.Set("publisher", w.Publisher)

	e.Key = citekey.Canonical(e)
	if e.Key == "" {
		e.Key = "ref" + citekey.Fold(doi)
	}
	return e
}

// formatAuthors renders authors in BibTeX "Family, Given and ..." form.
func formatAuthors(authors []author) string {
	parts := make([]string, 0, len(authors))
	for _, a := range authors {
		switch {
		case a.Family != "" && a.Given != "":
			parts = append(parts, a.Family+", "+a.Given)
		case a.Family != "":
			parts = append(parts, a.Family)
		}
	}
	return strings.Join(parts, " and ")
}

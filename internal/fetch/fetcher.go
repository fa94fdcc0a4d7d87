// Package fetch acquires PDF documents for bibliography entries from an
// ordered list of sources, persisting results atomically on disk.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bibkeep/bibkeep/internal/bib"
	"github.com/bibkeep/bibkeep/internal/events"
)

// Source identifiers, in attempt order.
const (
	SourceArxiv     = "arxiv"
	SourceUnpaywall = "unpaywall"
	SourceDirect    = "direct"
	SourceDownloads = "downloads"
)

// Status of a fetch outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome describes the result of one per-entry fetch.
type Outcome struct {
	Source  string   `json:"source,omitempty"` // source that succeeded
	Status  Status   `json:"status"`
	Path    string   `json:"path,omitempty"` // stored file path on success
	Reasons []string `json:"reasons,omitempty"`
}

// Reason joins the per-source failure reasons for display.
func (o Outcome) Reason() string {
	return strings.Join(o.Reasons, "; ")
}

// Config carries the orchestrator settings.
type Config struct {
	BaseDir   string // destination directory for stored PDFs
	Email     string // contact email for the open-access lookup
	Workers   int    // concurrent fetches in FetchMissing (default 3)
	Overwrite bool   // replace an existing file at the destination
}

// DefaultWorkers bounds batch concurrency to respect external rate limits.
const DefaultWorkers = 3

// Fetcher tries, per entry and in fixed order: the arXiv open repository when
// the entry's identifier or link names it, the Unpaywall open-access lookup
// by DOI, then the entry's own URL. A failure at any source is absorbed and
// the next source is tried; only exhausting all of them yields a failed
// outcome, and that is never fatal to the caller.
type Fetcher struct {
	cfg        Config
	httpClient *http.Client
	unpaywall  *UnpaywallClient
	arxivBase  string
	bus        *events.Bus
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client for downloads.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = hc }
}

// WithArxivBase overrides the arXiv host (for testing).
func WithArxivBase(base string) Option {
	return func(f *Fetcher) { f.arxivBase = base }
}

// WithUnpaywall replaces the Unpaywall client (for testing).
func WithUnpaywall(c *UnpaywallClient) Option {
	return func(f *Fetcher) { f.unpaywall = c }
}

// New creates a Fetcher. The bus may be nil when no host is listening.
func New(cfg Config, bus *events.Bus, opts ...Option) *Fetcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	f := &Fetcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		arxivBase:  DefaultArxivBase,
		bus:        bus,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.unpaywall == nil {
		f.unpaywall = NewUnpaywallClient(cfg.Email, WithUnpaywallHTTPClient(f.httpClient))
	}
	return f
}

// Fetch tries all sources for one entry and returns the outcome. The entry is
// not mutated; linking the stored file is the caller's decision.
func (f *Fetcher) Fetch(ctx context.Context, e *bib.Entry) Outcome {
	outcome := f.fetch(ctx, e)
	f.bus.Publish(events.FetchCompleted{
		Key:    e.Key,
		Source: outcome.Source,
		Status: string(outcome.Status),
		Path:   outcome.Path,
		Reason: outcome.Reason(),
	})
	return outcome
}

func (f *Fetcher) fetch(ctx context.Context, e *bib.Entry) Outcome {
	if f.cfg.BaseDir == "" {
		return Outcome{Status: StatusFailed, Reasons: []string{"PDF destination directory not configured"}}
	}
	if e.DOI() == "" && e.URL() == "" {
		return Outcome{Status: StatusSkipped, Reasons: []string{"entry has neither DOI nor URL"}}
	}

	dest := filepath.Join(f.cfg.BaseDir, Filename(e.Key, e.Title()))
	if _, err := os.Stat(dest); err == nil && !f.cfg.Overwrite {
		return Outcome{Status: StatusSkipped, Path: dest, Reasons: []string{"file already exists"}}
	}

	var reasons []string
	try := func(source string, attempt func() error) *Outcome {
		if err := attempt(); err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", source, err))
			return nil
		}
		return &Outcome{Source: source, Status: StatusSuccess, Path: dest}
	}

	if out := try(SourceArxiv, func() error { return f.tryArxiv(ctx, e, dest) }); out != nil {
		return *out
	}
	if out := try(SourceUnpaywall, func() error { return f.tryUnpaywall(ctx, e, dest) }); out != nil {
		return *out
	}
	if out := try(SourceDirect, func() error { return f.tryDirect(ctx, e, dest) }); out != nil {
		return *out
	}
	return Outcome{Status: StatusFailed, Reasons: reasons}
}

func (f *Fetcher) tryArxiv(ctx context.Context, e *bib.Entry, dest string) error {
	id := arxivID(e)
	if id == "" {
		return fmt.Errorf("no arXiv identifier on entry")
	}
	return f.downloadPDF(ctx, f.arxivBase+"/pdf/"+id, dest)
}

func (f *Fetcher) tryUnpaywall(ctx context.Context, e *bib.Entry, dest string) error {
	doi := e.DOI()
	if doi == "" {
		return fmt.Errorf("entry has no DOI")
	}
	candidates, err := f.unpaywall.PDFCandidates(ctx, doi)
	if err != nil {
		return err
	}
	var lastErr error
	for _, u := range candidates {
		if lastErr = f.downloadPDF(ctx, u, dest); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (f *Fetcher) tryDirect(ctx context.Context, e *bib.Entry, dest string) error {
	raw := e.URL()
	if raw == "" {
		return fmt.Errorf("entry has no URL")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("URL scheme is not http/https")
	}
	return f.downloadPDF(ctx, raw, dest)
}

// FetchMissing applies Fetch to every entry lacking a stored file link, a few
// at a time. One entry's failure never stops the others. The returned map
// covers exactly the attempted subset, keyed by citekey. Successful fetches
// are linked onto their entries after all workers finish, keeping mutation
// single-writer.
func (f *Fetcher) FetchMissing(ctx context.Context, c *bib.Collection) map[string]Outcome {
	var candidates []*bib.Entry
	for _, e := range c.Entries() {
		if e.FileLink() == "" {
			candidates = append(candidates, e)
		}
	}

	results := make(map[string]Outcome, len(candidates))
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, f.cfg.Workers)
	)
	for _, e := range candidates {
		wg.Add(1)
		go func(e *bib.Entry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome := f.Fetch(ctx, e)
			mu.Lock()
			results[e.Key] = outcome
			mu.Unlock()
		}(e)
	}
	wg.Wait()

	for _, e := range candidates {
		if out, ok := results[e.Key]; ok && out.Status == StatusSuccess {
			e.Set("file", bib.FormatFileLink(out.Path, f.cfg.BaseDir))
			c.Dirty = true
		}
	}
	return results
}

package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	// UnpaywallBaseURL is the Unpaywall REST API base URL.
	UnpaywallBaseURL = "https://api.unpaywall.org/v2"

	// unpaywallRateLimit keeps the client well inside the polite-use limits
	// the service asks of email-identified callers.
	unpaywallRateLimit = 1.0

	unpaywallTimeout = 15 * time.Second
)

// Errors returned by the Unpaywall client.
var (
	ErrNoEmail      = errors.New("no contact email configured for Unpaywall")
	ErrNoOpenAccess = errors.New("no open-access PDF location known")
)

// UnpaywallClient is a rate-limited client for the Unpaywall open-access
// lookup service. Every request carries the configured contact email, as the
// service requires.
type UnpaywallClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	email      string
}

// UnpaywallOption configures an UnpaywallClient.
type UnpaywallOption func(*UnpaywallClient)

// WithUnpaywallHTTPClient sets a custom HTTP client.
func WithUnpaywallHTTPClient(hc *http.Client) UnpaywallOption {
	return func(c *UnpaywallClient) { c.httpClient = hc }
}

// WithUnpaywallBaseURL sets a custom base URL (for testing).
func WithUnpaywallBaseURL(u string) UnpaywallOption {
	return func(c *UnpaywallClient) { c.baseURL = u }
}

// NewUnpaywallClient creates a client identified by the given contact email.
func NewUnpaywallClient(email string, opts ...UnpaywallOption) *UnpaywallClient {
	c := &UnpaywallClient{
		httpClient: &http.Client{Timeout: unpaywallTimeout},
		limiter:    rate.NewLimiter(rate.Limit(unpaywallRateLimit), 1),
		baseURL:    UnpaywallBaseURL,
		email:      email,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// unpaywallWork is the subset of the Unpaywall response we consume.
type unpaywallWork struct {
	BestOALocation *unpaywallLocation  `json:"best_oa_location"`
	OALocations    []unpaywallLocation `json:"oa_locations"`
}

type unpaywallLocation struct {
	URLForPDF string `json:"url_for_pdf"`
}

// PDFCandidates looks up a DOI and returns the direct PDF URLs Unpaywall
// knows, best location first. Landing-page-only results yield ErrNoOpenAccess.
func (c *UnpaywallClient) PDFCandidates(ctx context.Context, doi string) ([]string, error) {
	if c.email == "" {
		return nil, ErrNoEmail
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u := fmt.Sprintf("%s/%s?email=%s", c.baseURL, url.PathEscape(doi), url.QueryEscape(c.email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unpaywall lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: DOI %s", ErrNotFound, doi)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unpaywall lookup: HTTP %d", resp.StatusCode)
	}

	var work unpaywallWork
	if err := json.NewDecoder(resp.Body).Decode(&work); err != nil {
		return nil, fmt.Errorf("parsing unpaywall response: %w", err)
	}

	var candidates []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			candidates = append(candidates, u)
		}
	}
	if work.BestOALocation != nil {
		add(work.BestOALocation.URLForPDF)
	}
	for _, loc := range work.OALocations {
		add(loc.URLForPDF)
	}
	if len(candidates) == 0 {
		return nil, ErrNoOpenAccess
	}
	return candidates, nil
}

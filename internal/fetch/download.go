package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// pdfMagic is the leading byte signature every PDF payload starts with. It is
// the final validation authority when servers mislabel Content-Type.
var pdfMagic = []byte("%PDF-")

// userAgent mirrors a desktop browser; several publisher hosts refuse
// obviously scripted clients even for open-access documents.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0"

// Errors surfaced by the download path.
var (
	ErrNotPDF   = errors.New("response is not a PDF")
	ErrNotFound = errors.New("document not found")
)

// errProbeUnsupported means the server rejected the lightweight HEAD check;
// the caller retries with a full GET and validates the payload instead.
var errProbeUnsupported = errors.New("existence check not supported")

// downloadPDF fetches url into destPath. It probes with HEAD first; when the
// server rejects that, it falls through to a full GET validated by declared
// Content-Type or the %PDF- magic bytes. The payload streams to a temporary
// file in the destination directory and is renamed into place only after the
// whole transfer succeeds, so an interrupted download never leaves a partial
// file at the final path.
func (f *Fetcher) downloadPDF(ctx context.Context, url, destPath string) error {
	switch err := f.probe(ctx, url); {
	case err == nil:
	case errors.Is(err, errProbeUnsupported):
		// Validate on the GET instead.
	default:
		return err
	}
	return f.download(ctx, url, destPath)
}

// probe performs the lightweight existence/type check.
func (f *Fetcher) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return errProbeUnsupported
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: HTTP %d", ErrNotFound, resp.StatusCode)
	case resp.StatusCode >= 400:
		// Many hosts refuse HEAD outright (405, 403, 429); let GET decide.
		return errProbeUnsupported
	}

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "pdf"):
		return nil
	case ct == "" || strings.Contains(ct, "octet-stream"):
		return errProbeUnsupported
	default:
		return fmt.Errorf("%w (Content-Type: %s)", ErrNotPDF, ct)
	}
}

// download streams url to destPath via a temp file in the same directory.
func (f *Fetcher) download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/pdf,*/*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return fmt.Errorf("%w: HTTP %d", ErrNotFound, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	// Validate by declared type, falling back to the magic signature in the
	// leading bytes of the payload.
	head := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("reading response: %w", err)
	}
	head = head[:n]
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(ct, "pdf") && !bytes.HasPrefix(head, pdfMagic) {
		return fmt.Errorf("%w (Content-Type: %s)", ErrNotPDF, ct)
	}

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".bibkeep-*.pdf.part")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(head); err != nil {
		cleanup()
		return fmt.Errorf("writing download: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		cleanup()
		return fmt.Errorf("writing download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing download: %w", err)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("placing download: %w", err)
	}
	return nil
}

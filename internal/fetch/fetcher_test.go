package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bibkeep/bibkeep/internal/bib"
	"github.com/bibkeep/bibkeep/internal/events"
)

const fakePDF = "%PDF-1.4 fake payload"

func entry(key string, fields map[string]string) *bib.Entry {
	e := &bib.Entry{Key: key, Type: "article"}
	for name, v := range fields {
		e.Set(name, v)
	}
	return e
}

// pdfServer serves a valid PDF body on every path.
func pdfServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(fakePDF))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchArxivFirst(t *testing.T) {
	var gotPath string
	arxiv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(fakePDF))
	}))
	defer arxiv.Close()

	dir := t.TempDir()
	f := New(Config{BaseDir: dir}, nil, WithArxivBase(arxiv.URL))
	e := entry("smith2021", map[string]string{
		"title": "A Title",
		"doi":   "10.48550/arXiv.2101.00001",
	})

	out := f.Fetch(context.Background(), e)
	if out.Status != StatusSuccess {
		t.Fatalf("status = %s, reasons = %v", out.Status, out.Reasons)
	}
	if out.Source != SourceArxiv {
		t.Errorf("source = %s, want arxiv", out.Source)
	}
	if gotPath != "/pdf/2101.00001" {
		t.Errorf("arXiv path = %q", gotPath)
	}
	if want := filepath.Join(dir, "smith2021 - A Title.pdf"); out.Path != want {
		t.Errorf("path = %q, want %q", out.Path, want)
	}
	if data, err := os.ReadFile(out.Path); err != nil || string(data) != fakePDF {
		t.Errorf("stored payload wrong: %q, %v", data, err)
	}
}

func TestFetchFallsBackToUnpaywall(t *testing.T) {
	pdf := pdfServer(t)
	unpaywall := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("email") == "" {
			t.Error("unpaywall request missing email")
		}
		w.Write([]byte(`{"best_oa_location":{"url_for_pdf":"` + pdf.URL + `/oa.pdf"}}`))
	}))
	defer unpaywall.Close()

	dir := t.TempDir()
	up := NewUnpaywallClient("me@example.org", WithUnpaywallBaseURL(unpaywall.URL))
	f := New(Config{BaseDir: dir, Email: "me@example.org"}, nil, WithUnpaywall(up))
	e := entry("doe2020", map[string]string{"doi": "10.1234/nothing-arxiv"})

	out := f.Fetch(context.Background(), e)
	if out.Status != StatusSuccess {
		t.Fatalf("status = %s, reasons = %v", out.Status, out.Reasons)
	}
	if out.Source != SourceUnpaywall {
		t.Errorf("source = %s, want unpaywall", out.Source)
	}
}

func TestFetchDirectURLLast(t *testing.T) {
	pdf := pdfServer(t)
	dir := t.TempDir()
	f := New(Config{BaseDir: dir}, nil)
	e := entry("roe2019", map[string]string{"url": pdf.URL + "/paper.pdf"})

	out := f.Fetch(context.Background(), e)
	if out.Status != StatusSuccess {
		t.Fatalf("status = %s, reasons = %v", out.Status, out.Reasons)
	}
	if out.Source != SourceDirect {
		t.Errorf("source = %s, want direct", out.Source)
	}
}

func TestFetchSkipsWhenNothingToTry(t *testing.T) {
	f := New(Config{BaseDir: t.TempDir()}, nil)
	out := f.Fetch(context.Background(), entry("bare1999", map[string]string{"title": "No IDs"}))
	if out.Status != StatusSkipped {
		t.Errorf("status = %s, want skipped", out.Status)
	}
}

func TestFetchSkipsExistingFile(t *testing.T) {
	dir := t.TempDir()
	e := entry("smith2021", map[string]string{"title": "A Title", "doi": "10.1/x"})
	dest := filepath.Join(dir, Filename(e.Key, e.Title()))
	if err := os.WriteFile(dest, []byte(fakePDF), 0o644); err != nil {
		t.Fatal(err)
	}

	f := New(Config{BaseDir: dir}, nil)
	out := f.Fetch(context.Background(), e)
	if out.Status != StatusSkipped {
		t.Errorf("status = %s, want skipped", out.Status)
	}
	if out.Path != dest {
		t.Errorf("path = %q, want %q", out.Path, dest)
	}
}

func TestFetchAccumulatesFailureReasons(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir := t.TempDir()
	f := New(Config{BaseDir: dir}, nil, WithArxivBase(srv.URL))
	e := entry("gone2018", map[string]string{
		"doi": "10.48550/arXiv.1",
		"url": srv.URL + "/gone.pdf",
	})

	out := f.Fetch(context.Background(), e)
	if out.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	// One reason per attempted source.
	if len(out.Reasons) != 3 {
		t.Errorf("reasons = %v, want 3 entries", out.Reasons)
	}

	// Nothing partial may remain on disk.
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("leftover files after failure: %v", files)
	}
}

func TestInterruptedDownloadLeavesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		if r.Method == http.MethodHead {
			return
		}
		// Promise more than we deliver, then drop the connection mid-body.
		w.Header().Set("Content-Length", "1048576")
		w.Write([]byte(fakePDF))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		panic(http.ErrAbortHandler)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(Config{BaseDir: dir}, nil)
	e := entry("cut2015", map[string]string{"title": "Truncated", "url": srv.URL + "/paper.pdf"})

	out := f.Fetch(context.Background(), e)
	if out.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}

	dest := filepath.Join(dir, Filename(e.Key, e.Title()))
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("partial download reached the final path")
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, fi := range files {
		t.Errorf("leftover file %q after interrupted download", fi.Name())
	}
}

func TestDownloadRejectsNonPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>paywall</html>"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(Config{BaseDir: dir}, nil)
	out := f.Fetch(context.Background(), entry("pay2017", map[string]string{"url": srv.URL}))
	if out.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if !strings.Contains(out.Reason(), "not a PDF") {
		t.Errorf("reason = %q", out.Reason())
	}
}

func TestDownloadAcceptsMislabeledPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			// No Content-Type on HEAD forces the GET fallback.
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte(fakePDF))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(Config{BaseDir: dir}, nil)
	out := f.Fetch(context.Background(), entry("blob2016", map[string]string{"url": srv.URL}))
	if out.Status != StatusSuccess {
		t.Fatalf("status = %s, reasons = %v", out.Status, out.Reasons)
	}
}

func TestFetchMissing(t *testing.T) {
	pdf := pdfServer(t)
	dir := t.TempDir()

	c := &bib.Collection{}
	linked := entry("linked2020", map[string]string{"file": ":linked2020.pdf:PDF", "url": pdf.URL})
	missing1 := entry("miss2021", map[string]string{"title": "One", "url": pdf.URL + "/1.pdf"})
	missing2 := entry("miss2022", map[string]string{"title": "Two", "url": pdf.URL + "/2.pdf"})
	noSource := entry("bare2023", map[string]string{"title": "Three"})
	for _, e := range []*bib.Entry{linked, missing1, missing2, noSource} {
		c.Append(e)
	}
	c.Dirty = false

	bus := events.NewBus(16)
	f := New(Config{BaseDir: dir, Workers: 2}, bus)
	results := f.FetchMissing(context.Background(), c)

	if len(results) != 3 {
		t.Fatalf("attempted %d entries, want 3 (linked one excluded)", len(results))
	}
	if _, ok := results["linked2020"]; ok {
		t.Error("entry with a file link was attempted")
	}
	if results["miss2021"].Status != StatusSuccess || results["miss2022"].Status != StatusSuccess {
		t.Errorf("downloads failed: %+v", results)
	}
	if results["bare2023"].Status != StatusSkipped {
		t.Errorf("bare2023 = %+v, want skipped", results["bare2023"])
	}

	if missing1.FileLink() == "" || missing2.FileLink() == "" {
		t.Error("successful fetches not linked onto entries")
	}
	if noSource.Has("file") {
		t.Error("skipped entry gained a file link")
	}
	if !c.Dirty {
		t.Error("collection not marked dirty after linking")
	}

	done := 0
	for _, ev := range bus.Drain() {
		if _, ok := ev.(events.FetchCompleted); ok {
			done++
		}
	}
	if done != 3 {
		t.Errorf("got %d FetchCompleted events, want 3", done)
	}
}

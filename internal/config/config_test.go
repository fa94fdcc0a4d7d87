package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if !cfg.CheckForUpdates {
		t.Error("CheckForUpdates should default to true")
	}
	if cfg.AutoFetchPDF {
		t.Error("AutoFetchPDF should default to false")
	}
}

func TestLoadCorruptFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("{{{ not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Load(path)
	if !cfg.CheckForUpdates {
		t.Error("corrupt file should fall back to defaults")
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("unpaywall_email: me@example.org\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Load(path)
	if cfg.UnpaywallEmail != "me@example.org" {
		t.Errorf("UnpaywallEmail = %q", cfg.UnpaywallEmail)
	}
	if !cfg.CheckForUpdates {
		t.Error("absent keys must keep their defaults")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")
	cfg := Default()
	cfg.PDFBaseDir = "/papers"
	cfg.DownloadDir = "/downloads"
	cfg.UnpaywallEmail = "me@example.org"
	cfg.AutoFetchPDF = true
	cfg.Updates.LatestVersion = "v1.2.3"

	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	got := Load(path)
	if got.PDFBaseDir != "/papers" || got.DownloadDir != "/downloads" {
		t.Errorf("paths lost: %+v", got)
	}
	if !got.AutoFetchPDF || got.UnpaywallEmail != "me@example.org" {
		t.Errorf("values lost: %+v", got)
	}
	if got.Updates.LatestVersion != "v1.2.3" {
		t.Errorf("update state lost: %+v", got.Updates)
	}
}

func TestPathRespectsXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	want := filepath.Join("/xdg", ConfigDir, ConfigFile)
	if got := Path(); got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandTilde("~/papers"); got != filepath.Join(home, "papers") {
		t.Errorf("ExpandTilde = %q", got)
	}
	if got := ExpandTilde("/abs/papers"); got != "/abs/papers" {
		t.Errorf("absolute path changed: %q", got)
	}
	if got := ExpandTilde(""); got != "" {
		t.Errorf("empty path changed: %q", got)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("pdf_base_dir: ~/papers\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Load(path)
	if !strings.HasPrefix(cfg.PDFBaseDir, home) {
		t.Errorf("PDFBaseDir = %q, want under %q", cfg.PDFBaseDir, home)
	}
}

package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExport(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Create("first snippet"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create("git log --oneline"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	path, err := s.Export("")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	base := filepath.Base(path)
	if !strings.HasPrefix(base, "export_") || !strings.HasSuffix(base, ".txt") {
		t.Errorf("unexpected export name %q", base)
	}
	if filepath.Dir(path) != filepath.Join(s.baseDir, exportsDirName) {
		t.Errorf("export dir = %q", filepath.Dir(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	text := string(data)

	for _, want := range []string{
		"SnipVault Export",
		"Total Items: 2",
		strings.Repeat("=", 80),
		"Type: command",
		"Type: text",
		"first snippet",
		"git log --oneline",
		"Length: 13 chars",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("export missing %q", want)
		}
	}

	// Newest first, matching the index order.
	if strings.Index(text, "git log") > strings.Index(text, "first snippet") {
		t.Error("export items not newest-first")
	}
}

func TestExportCustomDir(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("content"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dir := t.TempDir()
	path, err := s.Export(dir)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("export dir = %q, want %q", filepath.Dir(path), dir)
	}
}

func TestExportEmptyStore(t *testing.T) {
	s := newTestStore(t)

	path, err := s.Export("")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "Total Items: 0") {
		t.Error("empty export missing zero count")
	}
}

func TestExportToleratesMissingContent(t *testing.T) {
	s := newTestStore(t)

	item, err := s.Create("will vanish")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.Remove(s.contentPath(item.ID)); err != nil {
		t.Fatalf("remove content: %v", err)
	}

	path, err := s.Export("")
	if err != nil {
		t.Fatalf("Export with missing content: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "Total Items: 1") {
		t.Error("item with missing content dropped from export")
	}
}

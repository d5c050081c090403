package storage

import (
	"os"
	"path/filepath"
	"testing"
)

type lastID struct {
	LastNewsID int64 `json:"last_news_id"`
}

func TestJSONFileMissingReturnsDefault(t *testing.T) {
	t.Parallel()
	f, err := NewJSONFile[[]int64](filepath.Join(t.TempDir(), "groups.json"))
	if err != nil {
		t.Fatal(err)
	}
	v, found, err := f.Load([]int64{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatal("missing file reported as found")
	}
	if v == nil || len(v) != 0 {
		t.Fatalf("expected empty default, got %v", v)
	}
}

func TestJSONFileSaveCreatesDirsAndRoundTrips(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "nested", "last_news_id.json")
	f, err := NewJSONFile[lastID](path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Save(lastID{LastNewsID: 42}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != `{"last_news_id":42}` {
		t.Fatalf("file content = %s", raw)
	}

	v, found, err := f.Load(lastID{})
	if err != nil || !found || v.LastNewsID != 42 {
		t.Fatalf("Load = %+v found=%v err=%v", v, found, err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestJSONFileCorruptIsError(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "groups.json")
	if err := os.WriteFile(path, []byte("[1, 2,"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, _ := NewJSONFile[[]int64](path)
	if _, _, err := f.Load(nil); err == nil {
		t.Fatal("expected decode error for corrupt file")
	}
}

func TestJSONFileEmptyIsDefault(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "groups.json")
	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, _ := NewJSONFile[[]int64](path)
	v, found, err := f.Load([]int64{7})
	if err != nil || found || len(v) != 1 || v[0] != 7 {
		t.Fatalf("Load = %v found=%v err=%v", v, found, err)
	}
}

func TestNewJSONFileRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := NewJSONFile[int](" "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

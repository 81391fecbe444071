package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeZip(t *testing.T, name string, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for entryName, content := range entries {
		if strings.HasSuffix(entryName, "/") {
			if _, err := zw.Create(entryName); err != nil {
				t.Fatalf("create dir entry %s: %v", entryName, err)
			}
			continue
		}
		w, err := zw.Create(entryName)
		if err != nil {
			t.Fatalf("create entry %s: %v", entryName, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %s: %v", entryName, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write zip: %v", err)
	}
	return path
}

func TestInspectBasic(t *testing.T) {
	path := writeZip(t, "sample.zip", map[string]string{
		"a.txt":     "hello",
		"dir/":      "",
		"dir/b.txt": "world12345",
	})

	report, err := Inspect(path)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !report.Valid {
		t.Fatalf("expected valid report, problems: %v", report.Problems)
	}
	if report.FileCount != 2 {
		t.Fatalf("file count = %d, want 2", report.FileCount)
	}
	if report.UncompressedSize != 15 {
		t.Fatalf("uncompressed size = %d, want 15", report.UncompressedSize)
	}
	if report.Encrypted {
		t.Fatal("unexpected encrypted flag")
	}
	if report.Method != "deflate" {
		t.Fatalf("method = %q, want deflate", report.Method)
	}
	if len(report.Members) != 3 {
		t.Fatalf("members = %d, want 3", len(report.Members))
	}
}

func TestInspectUnreadable(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"missing":   filepath.Join(dir, "nope.zip"),
		"empty":     filepath.Join(dir, "empty.zip"),
		"not a zip": filepath.Join(dir, "plain.txt"),
		"directory": dir,
	}
	if err := os.WriteFile(cases["empty"], nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cases["not a zip"], []byte("just text"), 0o644); err != nil {
		t.Fatal(err)
	}

	for name, path := range cases {
		if _, err := Inspect(path); !errors.Is(err, ErrUnreadable) {
			t.Errorf("%s: err = %v, want ErrUnreadable", name, err)
		}
	}
}

func TestInspectCorrupt(t *testing.T) {
	content := "the quick brown fox jumps over the lazy dog"
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "a.txt", Method: zip.Store})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	raw := buf.Bytes()
	idx := bytes.Index(raw, []byte("quick"))
	if idx < 0 {
		t.Fatal("stored payload not found")
	}
	raw[idx] ^= 0xff

	path := filepath.Join(t.TempDir(), "corrupt.zip")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := Inspect(path)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
	if !strings.Contains(err.Error(), "a.txt") {
		t.Fatalf("error should name the offending member, got %v", err)
	}
	if report == nil || report.Valid {
		t.Fatal("report should be returned and marked invalid")
	}
}

func TestDetectRootFolder(t *testing.T) {
	cases := []struct {
		name  string
		paths []string
		want  string
	}{
		{"single root", []string{"project/src/main.go", "project/README.md", "project/"}, "project"},
		{"no common root", []string{"src/main.go", "README.md"}, ""},
		{"root only entry", []string{"project"}, "project"},
		{"backslash separators", []string{"pkg\\a.txt", "pkg\\sub\\b.txt"}, "pkg"},
		{"empty", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectRootFolder(tc.paths); got != tc.want {
				t.Fatalf("DetectRootFolder(%v) = %q, want %q", tc.paths, got, tc.want)
			}
		})
	}
}

func TestScreenRatio(t *testing.T) {
	members := []Member{
		{Path: "big.bin", UncompressedSize: 1 << 20, CompressedSize: 512},
	}
	check := Screen(members, 1024, DefaultLimits())
	if !check.Suspect {
		t.Fatal("expected bomb suspect for 1024x expansion")
	}
	if len(check.Reasons) == 0 {
		t.Fatal("expected a reason")
	}

	benign := []Member{{Path: "a.txt", UncompressedSize: 100, CompressedSize: 60}}
	if check := Screen(benign, 80, DefaultLimits()); check.Suspect {
		t.Fatalf("benign archive flagged: %v", check.Reasons)
	}
}

func TestScreenDepth(t *testing.T) {
	deep := "a" + strings.Repeat("/a", 60)
	members := []Member{{Path: deep, UncompressedSize: 1, CompressedSize: 1}}
	check := Screen(members, 100, DefaultLimits())
	if !check.Suspect {
		t.Fatal("expected bomb suspect for 61-deep path")
	}

	limits := Limits{MaxDepth: 0, MaxRatio: 100}
	if check := Screen(members, 100, limits); check.Suspect {
		t.Fatal("depth check should be disabled by a zero limit")
	}
}

func TestDepth(t *testing.T) {
	cases := map[string]int{
		"":            0,
		"a.txt":       1,
		"a/b.txt":     2,
		"a/b/":        2,
		"a\\b\\c.txt": 3,
	}
	for path, want := range cases {
		if got := Depth(path); got != want {
			t.Errorf("Depth(%q) = %d, want %d", path, got, want)
		}
	}
}

func TestReaderMembers(t *testing.T) {
	path := writeZip(t, "r.zip", map[string]string{"x/y.txt": "payload"})
	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	members := r.Members()
	if len(members) != 1 {
		t.Fatalf("members = %d, want 1", len(members))
	}
	m := members[0]
	if m.Path != "x/y.txt" || m.IsDir || m.UncompressedSize != 7 {
		t.Fatalf("unexpected member: %+v", m)
	}
}

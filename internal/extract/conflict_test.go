package extract

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParsePolicy(t *testing.T) {
	for _, s := range []string{"ask", "Overwrite", " skip ", "RENAME"} {
		if _, err := ParsePolicy(s); err != nil {
			t.Errorf("ParsePolicy(%q): %v", s, err)
		}
	}
	if _, err := ParsePolicy("merge"); err == nil {
		t.Error("ParsePolicy should reject unknown policies")
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "file.txt")

	if got := uniquePath(base); got != base {
		t.Fatalf("free path should come back unchanged, got %q", got)
	}

	touch(t, base)
	first := uniquePath(base)
	if want := filepath.Join(dir, "file (1).txt"); first != want {
		t.Fatalf("uniquePath = %q, want %q", first, want)
	}

	touch(t, first)
	second := uniquePath(base)
	if want := filepath.Join(dir, "file (2).txt"); second != want {
		t.Fatalf("uniquePath = %q, want %q", second, want)
	}
}

func TestUniquePathNoExtension(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "README")
	touch(t, base)
	if got, want := uniquePath(base), filepath.Join(dir, "README (1)"); got != want {
		t.Fatalf("uniquePath = %q, want %q", got, want)
	}
}

func TestResolveConflictDeterministic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	touch(t, target)

	if got, skip := resolveConflict(target, PolicyOverwrite, nil); skip || got != target {
		t.Fatalf("overwrite: got (%q, %v)", got, skip)
	}
	if _, skip := resolveConflict(target, PolicySkip, nil); !skip {
		t.Fatal("skip policy should skip")
	}
	if got, skip := resolveConflict(target, PolicyRename, nil); skip || got == target {
		t.Fatalf("rename: got (%q, %v)", got, skip)
	}
}

func TestResolveConflictAsk(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	touch(t, target)

	var asked string
	resolver := ResolverFunc(func(existing string) Decision {
		asked = existing
		return DecisionRename
	})
	got, skip := resolveConflict(target, PolicyAsk, resolver)
	if asked != target {
		t.Fatalf("resolver asked about %q, want %q", asked, target)
	}
	if skip || got == target {
		t.Fatalf("ask->rename: got (%q, %v)", got, skip)
	}
}

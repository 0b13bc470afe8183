package textops

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/oukeidos/ocap/internal/apperrors"
)

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a cat"), 0o644)
	os.WriteFile(filepath.Join(dir, "sub", "b.TXT"), []byte("a dog"), 0o644)
	os.WriteFile(filepath.Join(dir, "c.png"), []byte("img"), 0o644)
	return dir
}

func content(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestInsert(t *testing.T) {
	tests := []struct {
		pos   Position
		wantA string
		verb  string
	}{
		{Front, "masterpiece a cat", "prepended"},
		{End, "a cat, masterpiece", "appended"},
	}
	for _, tt := range tests {
		t.Run(string(tt.pos), func(t *testing.T) {
			dir := setup(t)
			text := "masterpiece"
			if tt.pos == Front {
				text = "masterpiece "
			}
			lines, err := Insert(dir, text, tt.pos)
			if err != nil {
				t.Fatal(err)
			}
			if got := content(t, filepath.Join(dir, "a.txt")); got != tt.wantA {
				t.Errorf("a.txt = %q, want %q", got, tt.wantA)
			}
			want := []string{"a.txt: " + tt.verb, filepath.Join("sub", "b.TXT") + ": " + tt.verb}
			if !reflect.DeepEqual(lines, want) {
				t.Errorf("lines = %v, want %v", lines, want)
			}
			if got := content(t, filepath.Join(dir, "c.png")); got != "img" {
				t.Errorf("non-sidecar modified")
			}
		})
	}
}

func TestReplace(t *testing.T) {
	dir := setup(t)
	lines, err := Replace(dir, "cat", "kitten")
	if err != nil {
		t.Fatal(err)
	}
	if got := content(t, filepath.Join(dir, "a.txt")); got != "a kitten" {
		t.Errorf("a.txt = %q", got)
	}
	if got := content(t, filepath.Join(dir, "sub", "b.TXT")); got != "a dog" {
		t.Errorf("b.TXT = %q", got)
	}
	want := []string{"a.txt: replaced 1 occurrence(s)", filepath.Join("sub", "b.TXT") + ": no match"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("lines = %v, want %v", lines, want)
	}
}

func TestValidation(t *testing.T) {
	dir := setup(t)
	if _, err := Replace(dir, "", "x"); !apperrors.IsValidation(err) {
		t.Errorf("empty find: %v", err)
	}
	if _, err := Insert(filepath.Join(dir, "missing"), "x", End); !apperrors.IsValidation(err) {
		t.Errorf("missing dir: %v", err)
	}
	if _, err := Insert(dir, "x", "middle"); !apperrors.IsValidation(err) {
		t.Errorf("bad position: %v", err)
	}
}

func TestReplace_SymlinkedFolder(t *testing.T) {
	dir := setup(t)
	link := filepath.Join(t.TempDir(), "captions")
	if err := os.Symlink(dir, link); err != nil {
		t.Skipf("symlink not available: %v", err)
	}
	lines, err := Replace(link, "a ", "one ")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.txt: replaced 1 occurrence(s)", filepath.Join("sub", "b.TXT") + ": replaced 1 occurrence(s)"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("lines = %v, want %v", lines, want)
	}
	if got := content(t, filepath.Join(dir, "sub", "b.TXT")); got != "one dog" {
		t.Errorf("b.TXT = %q", got)
	}
}

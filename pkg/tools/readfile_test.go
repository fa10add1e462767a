package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeAllowedDirs(t *testing.T) {
	dir := t.TempDir()
	got := normalizeAllowedDirs([]string{dir, "  ", dir + string(filepath.Separator), dir})
	if len(got) != 1 || got[0] != filepath.Clean(dir) {
		t.Fatalf("unexpected dirs %v", got)
	}
}

func TestValidatePath(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	roots := normalizeAllowedDirs([]string{root})

	if _, err := validatePath(filepath.Join(root, "a.txt"), roots); err != nil {
		t.Fatalf("expected path inside root to pass: %v", err)
	}
	if _, err := validatePath(root+"/../x", roots); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
	if _, err := validatePath(filepath.Join(other, "b.txt"), roots); err == nil {
		t.Fatal("expected path outside root to be rejected")
	}
	if _, err := validatePath(root+"-sibling/c.txt", roots); err == nil {
		t.Fatal("expected sibling prefix to be rejected")
	}
	if _, err := validatePath("", roots); err == nil {
		t.Fatal("expected empty path to be rejected")
	}
}

func TestReadFileRequiresAllowedDir(t *testing.T) {
	if _, err := ReadFile(nil, 0); !errors.Is(err, ErrInvalidDeclaration) {
		t.Fatalf("expected ErrInvalidDeclaration, got %v", err)
	}
}

func TestReadFileHandler(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello world"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	h, err := ReadFile([]string{root}, 0)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	ctx := context.Background()

	out, err := h(ctx, map[string]any{"path": "notes.txt"})
	if err != nil {
		t.Fatalf("read relative path: %v", err)
	}
	content := out.(FileContent)
	if content.Content != "hello world" || content.Truncated {
		t.Fatalf("unexpected content %+v", content)
	}

	out, err = h(ctx, map[string]any{"path": filepath.Join(root, "notes.txt"), "max_bytes": 5.0})
	if err != nil {
		t.Fatalf("read with limit: %v", err)
	}
	content = out.(FileContent)
	if content.Content != "hello" || !content.Truncated || content.Bytes != 5 {
		t.Fatalf("expected truncated content, got %+v", content)
	}

	cases := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing path", map[string]any{}, "path is required"},
		{"traversal", map[string]any{"path": "../secret"}, "traversal"},
		{"directory", map[string]any{"path": "sub"}, "is a directory"},
		{"missing file", map[string]any{"path": "nope.txt"}, "no such file"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h(ctx, tc.args)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestRegisterReadFile(t *testing.T) {
	r := NewRegistry()
	if err := RegisterReadFile(r, []string{t.TempDir()}, 1024); err != nil {
		t.Fatalf("RegisterReadFile: %v", err)
	}
	entry, err := r.Lookup(ReadFileToolName)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if entry.Declaration.Parameters == nil || entry.Declaration.Parameters.Required[0] != "path" {
		t.Fatalf("unexpected declaration %+v", entry.Declaration)
	}
}

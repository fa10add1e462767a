package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// ReadFileToolName is the name of the sandboxed file reader.
const ReadFileToolName = "read_file"

// DefaultMaxReadBytes caps read_file output when the call sets no limit.
const DefaultMaxReadBytes int64 = 16 * 1024

// FileContent is read_file's result.
type FileContent struct {
	Path      string `json:"path"`
	Bytes     int    `json:"bytes"`
	Truncated bool   `json:"truncated"`
	Content   string `json:"content"`
}

type readFileArgs struct {
	Path     string `mapstructure:"path"`
	MaxBytes int64  `mapstructure:"max_bytes"`
}

// ReadFileDeclaration declares read_file(path, max_bytes).
func ReadFileDeclaration() Declaration {
	return Declaration{
		Name:        ReadFileToolName,
		Description: "Read a text file from an allowed directory",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": {
					Type:        "string",
					Description: "File path, absolute or relative to the first allowed directory",
				},
				"max_bytes": {
					Type:        "integer",
					Description: "Maximum bytes to return",
				},
			},
			Required: []string{"path"},
		},
	}
}

// ReadFile returns a read_file handler confined to allowedDirs. At least one
// directory is required.
func ReadFile(allowedDirs []string, maxBytes int64) (Handler, error) {
	roots := normalizeAllowedDirs(allowedDirs)
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: read_file needs at least one allowed directory", ErrInvalidDeclaration)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxReadBytes
	}

	return func(_ context.Context, raw map[string]any) (any, error) {
		var args readFileArgs
		if err := mapstructure.WeakDecode(raw, &args); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
		if strings.TrimSpace(args.Path) == "" {
			return nil, errors.New("path is required")
		}
		path := args.Path
		if hasParentTraversal(path) {
			return nil, fmt.Errorf("path traversal not allowed: %s", path)
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(roots[0], path)
		}
		validated, err := validatePath(path, roots)
		if err != nil {
			return nil, fmt.Errorf("path validation failed: %w", err)
		}
		if err := validateFileExists(validated); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(validated)
		if err != nil {
			return nil, err
		}
		limit := args.MaxBytes
		if limit <= 0 || limit > maxBytes {
			limit = maxBytes
		}
		truncated := false
		if int64(len(data)) > limit {
			truncated = true
			data = data[:limit]
		}
		return FileContent{
			Path:      validated,
			Bytes:     len(data),
			Truncated: truncated,
			Content:   string(data),
		}, nil
	}, nil
}

// RegisterReadFile registers read_file over allowedDirs.
func RegisterReadFile(r *Registry, allowedDirs []string, maxBytes int64) error {
	h, err := ReadFile(allowedDirs, maxBytes)
	if err != nil {
		return err
	}
	return r.Register(ReadFileDeclaration(), h)
}

// normalizeAllowedDirs returns a sorted, deduplicated list of absolute directories.
func normalizeAllowedDirs(allowedDirs []string) []string {
	normalized := make([]string, 0, len(allowedDirs))
	seen := map[string]struct{}{}
	for _, dir := range allowedDirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		abs = filepath.Clean(abs)
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		normalized = append(normalized, abs)
	}
	slices.Sort(normalized)
	return normalized
}

// validatePath ensures path has no parent segments and lies within one of roots.
func validatePath(path string, roots []string) (string, error) {
	if path == "" {
		return "", errors.New("path cannot be empty")
	}
	if hasParentTraversal(path) {
		return "", fmt.Errorf("path traversal not allowed: %s", path)
	}
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	for _, root := range roots {
		rel, err := filepath.Rel(root, absPath)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return absPath, nil
		}
	}
	return "", fmt.Errorf("path outside allowed directories: %s", absPath)
}

func hasParentTraversal(path string) bool {
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == filepath.Separator }) {
		if part == ".." {
			return true
		}
	}
	return false
}

// validateFileExists checks that path exists and is not a directory.
func validateFileExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory: %s", path)
	}
	return nil
}

package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kelter-antunes/chromara/internal/debug"
)

// PicturesDir is the top-level folder every asset lives under.
const PicturesDir = "Pictures"

// FileSink writes assets to Root/Pictures/<subfolder>/<name>.
type FileSink struct {
	root   string
	prefix string
}

// NewFileSink creates a sink rooted at root naming files with prefix.
func NewFileSink(root, prefix string) *FileSink {
	return &FileSink{root: root, prefix: prefix}
}

// Save implements Sink.
func (s *FileSink) Save(ctx context.Context, a Asset) (Reference, error) {
	if err := ctx.Err(); err != nil {
		return Reference{}, err
	}
	sub, err := cleanSubfolder(a.Subfolder)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	if info, err := os.Stat(s.root); err != nil || !info.IsDir() {
		return Reference{}, fmt.Errorf("%w: root %s is not a directory", ErrStorageUnavailable, s.root)
	}
	rel := path.Join(PicturesDir, sub)
	dir := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Reference{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	name := FileName(s.prefix, a.Kind, a.TakenAt)
	full := filepath.Join(dir, name)
	if err := writeFile(full, a.Data); err != nil {
		return Reference{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	debug.Verbose("FileSink: wrote %s (%d bytes)", full, len(a.Data))

	abs, err := filepath.Abs(full)
	if err != nil {
		abs = full
	}
	return Reference{
		URI:          (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(),
		Name:         name,
		RelativePath: rel + "/",
		Kind:         a.Kind,
	}, nil
}

// writeFile writes through a temporary file so readers never observe a
// partial asset; an existing file with the same name is replaced.
func writeFile(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), ".chromara-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}

// cleanSubfolder rejects subfolders that would escape Pictures/.
func cleanSubfolder(sub string) (string, error) {
	sub = strings.Trim(filepath.ToSlash(sub), "/")
	if sub == "" {
		return "", fmt.Errorf("subfolder is required")
	}
	clean := path.Clean(sub)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("subfolder %q escapes %s/", sub, PicturesDir)
	}
	return clean, nil
}

// Package zip bundles generated media files into a single archive.
package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// File is one archive member read from disk. Name defaults to the base name
// of Path.
type File struct {
	Path string
	Name string
}

// Archive streams files into a zip written to w. Members keep their
// modification time. Media is already compressed, so entries are stored.
func Archive(w io.Writer, files []File) (int, error) {
	zw := zip.NewWriter(w)
	seen := make(map[string]bool, len(files))
	n := 0
	for _, f := range files {
		name := f.Name
		if name == "" {
			name = filepath.Base(f.Path)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		if err := add(zw, f.Path, name); err != nil {
			_ = zw.Close()
			return n, err
		}
		n++
	}
	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("zip: finish archive: %w", err)
	}
	return n, nil
}

func add(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("zip: open %s: %w", path, err)
	}
	defer src.Close()
	modTime := time.Now()
	if st, err := src.Stat(); err == nil {
		modTime = st.ModTime()
	}
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store, Modified: modTime})
	if err != nil {
		return fmt.Errorf("zip: add %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("zip: copy %s: %w", name, err)
	}
	return nil
}

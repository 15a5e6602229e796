package catalog

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"mediagen/internal/imagegen"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	// TimestampLayout renders modification times.
	TimestampLayout = "2006-01-02 15:04:05 UTC"
)

// ErrNotFound is returned by Info when no candidate path exists.
var ErrNotFound = errors.New("catalog: image not found")

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// Entry is one listed image.
type Entry struct {
	Filename      string `json:"filename"`
	ImagePath     string `json:"image_path"`
	FileSize      string `json:"file_size"`
	FileSizeBytes int64  `json:"file_size_bytes"`
	ModifiedAt    string `json:"modified_at"`

	modTime time.Time
}

// Page is a window over the newest-first listing.
type Page struct {
	Total      int     `json:"total"`
	Count      int     `json:"count"`
	Offset     int     `json:"offset"`
	HasMore    bool    `json:"has_more"`
	NextOffset *int    `json:"next_offset"`
	Images     []Entry `json:"images"`
}

// Info is decoded metadata for a single image.
type Info struct {
	Filename      string `json:"filename"`
	ImagePath     string `json:"image_path"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Format        string `json:"format"`
	Mode          string `json:"mode"`
	FileSize      string `json:"file_size"`
	FileSizeBytes int64  `json:"file_size_bytes"`
	ModifiedAt    string `json:"modified_at"`
}

// DecodeError reports a file that exists but is not a readable image.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("catalog: cannot read image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Catalog inspects the image output directory. The filesystem is the only
// source of truth; nothing is indexed.
type Catalog struct {
	dir string
}

// New returns a catalog over dir.
func New(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Dir returns the scanned directory.
func (c *Catalog) Dir() string { return c.dir }

// List returns images newest first. limit is clamped to 1..MaxLimit and a
// negative offset is treated as zero. A missing directory yields an empty page.
func (c *Catalog) List(offset, limit int) (Page, error) {
	limit = max(1, min(limit, MaxLimit))
	offset = max(0, offset)

	entries, err := c.scan()
	if err != nil {
		return Page{}, err
	}
	total := len(entries)
	page := Page{Total: total, Offset: offset, Images: []Entry{}}
	if offset < total {
		end := min(offset+limit, total)
		page.Images = entries[offset:end]
	}
	page.Count = len(page.Images)
	page.HasMore = total > offset+page.Count
	if page.HasMore {
		next := offset + page.Count
		page.NextOffset = &next
	}
	return page, nil
}

func (c *Catalog) scan() ([]Entry, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("catalog: read dir: %w", err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(de.Name()))] {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		abs, err := filepath.Abs(filepath.Join(c.dir, de.Name()))
		if err != nil {
			return nil, fmt.Errorf("catalog: resolve path: %w", err)
		}
		entries = append(entries, Entry{
			Filename:      de.Name(),
			ImagePath:     abs,
			FileSize:      imagegen.FormatFileSize(info.Size()),
			FileSizeBytes: info.Size(),
			ModifiedAt:    FormatTimestamp(info.ModTime()),
			modTime:       info.ModTime(),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].modTime.Equal(entries[j].modTime) {
			return entries[i].modTime.After(entries[j].modTime)
		}
		return entries[i].Filename < entries[j].Filename
	})
	return entries, nil
}

// Resolve finds p as an existing absolute path, then as a file name inside the
// catalog directory, then relative to the working directory.
func (c *Catalog) Resolve(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", ErrNotFound
	}
	if filepath.IsAbs(p) && isFile(p) {
		return p, nil
	}
	if candidate := filepath.Join(c.dir, filepath.Base(p)); isFile(candidate) {
		return filepath.Abs(candidate)
	}
	if isFile(p) {
		return filepath.Abs(p)
	}
	return "", ErrNotFound
}

// Info decodes the header of the image at p.
func (c *Catalog) Info(p string) (Info, error) {
	resolved, err := c.Resolve(p)
	if err != nil {
		return Info{}, err
	}
	f, err := os.Open(resolved)
	if err != nil {
		return Info{}, fmt.Errorf("catalog: open: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Info{}, &DecodeError{Path: resolved, Err: err}
	}
	st, err := f.Stat()
	if err != nil {
		return Info{}, fmt.Errorf("catalog: stat: %w", err)
	}
	return Info{
		Filename:      filepath.Base(resolved),
		ImagePath:     resolved,
		Width:         cfg.Width,
		Height:        cfg.Height,
		Format:        strings.ToUpper(format),
		Mode:          colorMode(cfg.ColorModel),
		FileSize:      imagegen.FormatFileSize(st.Size()),
		FileSizeBytes: st.Size(),
		ModifiedAt:    FormatTimestamp(st.ModTime()),
	}, nil
}

// FormatTimestamp renders t in UTC with second precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

// colorMode names the pixel layout the way image tools usually report it.
func colorMode(m color.Model) string {
	switch m {
	case color.RGBAModel, color.NRGBAModel, color.RGBA64Model, color.NRGBA64Model:
		return "RGBA"
	case color.GrayModel, color.Gray16Model:
		return "L"
	case color.AlphaModel, color.Alpha16Model:
		return "A"
	case color.YCbCrModel:
		return "RGB"
	case color.NYCbCrAModel:
		return "RGBA"
	case color.CMYKModel:
		return "CMYK"
	}
	if _, ok := m.(color.Palette); ok {
		return "P"
	}
	return "RGB"
}

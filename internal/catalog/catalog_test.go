package catalog

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func seedImages(t *testing.T, dir string, n int) {
	t.Helper()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		p := filepath.Join(dir, fmt.Sprintf("img_%02d.png", i))
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		mt := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(p, mt, mt); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
}

func TestListPagination(t *testing.T) {
	dir := t.TempDir()
	seedImages(t, dir, 25)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	c := New(dir)

	first, err := c.List(0, 20)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if first.Total != 25 || first.Count != 20 || !first.HasMore {
		t.Fatalf("first page = total %d count %d more %v", first.Total, first.Count, first.HasMore)
	}
	if first.NextOffset == nil || *first.NextOffset != 20 {
		t.Fatalf("next offset = %v, want 20", first.NextOffset)
	}
	if first.Images[0].Filename != "img_24.png" {
		t.Fatalf("newest first expected, got %s", first.Images[0].Filename)
	}

	second, err := c.List(20, 20)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if second.Count != 5 || second.HasMore || second.NextOffset != nil {
		t.Fatalf("second page = count %d more %v next %v", second.Count, second.HasMore, second.NextOffset)
	}
	if second.Images[4].Filename != "img_00.png" {
		t.Fatalf("oldest last expected, got %s", second.Images[4].Filename)
	}
	if second.Images[0].ModifiedAt != "2025-01-01 12:04:00 UTC" {
		t.Fatalf("modified_at = %q", second.Images[0].ModifiedAt)
	}
}

func TestListIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	seedImages(t, dir, 7)
	c := New(dir)

	a, err := c.List(2, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	b, err := c.List(2, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("listing changed between calls:\n%+v\n%+v", a, b)
	}
}

func TestListClampsArguments(t *testing.T) {
	dir := t.TempDir()
	seedImages(t, dir, 3)
	c := New(dir)

	page, err := c.List(-5, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Offset != 0 || page.Count != 1 {
		t.Fatalf("page = offset %d count %d", page.Offset, page.Count)
	}
	page, err = c.List(10, 500)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Count != 0 || page.HasMore || len(page.Images) != 0 || page.Images == nil {
		t.Fatalf("past-the-end page = %+v", page)
	}
}

func TestListMissingDirectory(t *testing.T) {
	page, err := New(filepath.Join(t.TempDir(), "nope")).List(0, 20)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 0 || page.Images == nil {
		t.Fatalf("page = %+v", page)
	}
}

func TestInfoResolution(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "flux_mcp_00001_.png")
	writePNG(t, abs, 128, 64)
	c := New(dir)

	for _, p := range []string{abs, "flux_mcp_00001_.png", "/elsewhere/flux_mcp_00001_.png"} {
		info, err := c.Info(p)
		if err != nil {
			t.Fatalf("Info(%q): %v", p, err)
		}
		if info.Width != 128 || info.Height != 64 || info.Format != "PNG" || info.Mode != "RGBA" {
			t.Fatalf("Info(%q) = %+v", p, info)
		}
		if info.ImagePath != abs {
			t.Fatalf("ImagePath = %q, want %q", info.ImagePath, abs)
		}
	}

	if _, err := c.Info("missing.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestInfoJPEGAndGray(t *testing.T) {
	dir := t.TempDir()
	jpgPath := filepath.Join(dir, "photo.jpg")
	f, err := os.Create(jpgPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := jpeg.Encode(f, image.NewRGBA(image.Rect(0, 0, 32, 16)), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	grayPath := filepath.Join(dir, "gray.png")
	g, err := os.Create(grayPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := png.Encode(g, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	g.Close()

	c := New(dir)
	info, err := c.Info(jpgPath)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Format != "JPEG" || info.Mode != "RGB" || info.Width != 32 {
		t.Fatalf("jpeg info = %+v", info)
	}
	info, err = c.Info(grayPath)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Mode != "L" {
		t.Fatalf("gray mode = %q, want L", info.Mode)
	}
}

func TestInfoUndecodable(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "broken.png")
	if err := os.WriteFile(p, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := New(dir).Info(p)
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("error = %v, want DecodeError", err)
	}
}

// Package tiles loads the reference image and the tile set from disk and
// applies the size floor before tiles reach the reconstruction engine.
package tiles

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// DefaultMinSize is the size floor applied by Filter. Tiles whose width or
// height does not exceed it are discarded as trim slivers.
const DefaultMinSize = 5

// ErrNoTiles is returned by LoadDir when the directory holds no image files.
var ErrNoTiles = errors.New("no tile images found")

var extensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImageFile reports whether name has an extension LoadDir will decode.
func IsImageFile(name string) bool {
	return extensions[strings.ToLower(filepath.Ext(name))]
}

// LoadReference decodes the image at path into an NRGBA buffer anchored at
// (0, 0).
func LoadReference(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", path, err)
	}
	return imaging.Clone(img), nil
}

// LoadDir decodes every image file directly inside dir. Files are sorted by
// name so the tile order, and with it tie breaking, is stable across runs.
// Subdirectories and files with unknown extensions are skipped; a file that
// fails to decode aborts the load.
func LoadDir(dir string) ([]*image.NRGBA, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tile directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("%w in %s", ErrNoTiles, dir)
	}
	sort.Strings(names)

	out := make([]*image.NRGBA, 0, len(names))
	for _, name := range names {
		tile, err := LoadReference(filepath.Join(dir, name))
		if err != nil {
			return nil, nil, err
		}
		out = append(out, tile)
	}

	slog.Debug("Loaded tiles", "dir", dir, "count", len(out))
	return out, names, nil
}

// Filter returns the tiles whose width and height both exceed minSize, preserving
// order. The input slice is not modified.
func Filter(tiles []*image.NRGBA, minSize int) []*image.NRGBA {
	out := make([]*image.NRGBA, 0, len(tiles))
	for _, t := range tiles {
		if Keep(t, minSize) {
			out = append(out, t)
		}
	}
	if dropped := len(tiles) - len(out); dropped > 0 {
		slog.Debug("Filtered small tiles", "dropped", dropped, "min", minSize)
	}
	return out
}

// Keep reports whether tile passes the size floor.
func Keep(tile *image.NRGBA, minSize int) bool {
	b := tile.Bounds()
	return b.Dx() > minSize && b.Dy() > minSize
}

// Package pixel holds the region utilities shared by the scorers, the
// reconstruction engine and the outer layers.
//
// Every buffer is an *image.NRGBA. Only the R, G and B samples carry meaning;
// alpha is kept opaque on buffers created here and ignored everywhere else.
package pixel

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/blend"
	"github.com/disintegration/imaging"
)

// Black is the initial canvas value.
var Black = color.NRGBA{R: 0, G: 0, B: 0, A: 255}

// Crop returns a copy of the w x h region of buf whose top-left corner is (x, y).
// The region is clipped to buf's bounds, so the result can be smaller than
// requested (or empty) when the rectangle overhangs an edge.
func Crop(buf *image.NRGBA, x, y, w, h int) *image.NRGBA {
	origin := buf.Bounds().Min
	rect := image.Rect(x, y, x+w, y+h).Add(origin)
	return imaging.Crop(buf, rect)
}

// Blit copies every pixel of src into dst with src's top-left corner at (x, y).
// Destination coordinates outside dst are skipped.
func Blit(dst, src *image.NRGBA, x, y int) {
	sb := src.Bounds()
	db := dst.Bounds()

	target := image.Rect(x, y, x+sb.Dx(), y+sb.Dy()).Add(db.Min)
	clipped := target.Intersect(db)
	if clipped.Empty() {
		return
	}

	// Offset of the first copied source pixel relative to src's origin
	sx := sb.Min.X + (clipped.Min.X - target.Min.X)
	sy := sb.Min.Y + (clipped.Min.Y - target.Min.Y)
	rowBytes := clipped.Dx() * 4

	for row := 0; row < clipped.Dy(); row++ {
		di := dst.PixOffset(clipped.Min.X, clipped.Min.Y+row)
		si := src.PixOffset(sx, sy+row)
		copy(dst.Pix[di:di+rowBytes], src.Pix[si:si+rowBytes])
	}
}

// Blank returns a new buffer with template's dimensions, all samples zero.
func Blank(template *image.NRGBA) *image.NRGBA {
	b := template.Bounds()
	return imaging.New(b.Dx(), b.Dy(), Black)
}

// Clone returns a deep copy of img as an NRGBA buffer anchored at (0, 0).
func Clone(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// Equal reports whether a and b have the same size and identical RGB samples.
func Equal(a, b *image.NRGBA) bool {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return false
	}

	for y := 0; y < ab.Dy(); y++ {
		ai := a.PixOffset(ab.Min.X, ab.Min.Y+y)
		bi := b.PixOffset(bb.Min.X, bb.Min.Y+y)
		for x := 0; x < ab.Dx(); x++ {
			if a.Pix[ai] != b.Pix[bi] || a.Pix[ai+1] != b.Pix[bi+1] || a.Pix[ai+2] != b.Pix[bi+2] {
				return false
			}
			ai += 4
			bi += 4
		}
	}
	return true
}

// Diff returns the per-channel absolute difference of ref and canvas as an
// opaque image. Black means the canvas matches the reference.
func Diff(ref, canvas *image.NRGBA) *image.NRGBA {
	diff := imaging.Clone(blend.Difference(ref, canvas))
	for i := 3; i < len(diff.Pix); i += 4 {
		diff.Pix[i] = 255
	}
	return diff
}

// Digest returns a hex SHA-256 over the RGB samples of img in raster order,
// prefixed by its dimensions. Equal digests mean Equal buffers.
func Digest(img *image.NRGBA) string {
	b := img.Bounds()
	h := sha256.New()
	var size [8]byte
	binary.BigEndian.PutUint32(size[:4], uint32(b.Dx()))
	binary.BigEndian.PutUint32(size[4:], uint32(b.Dy()))
	h.Write(size[:])

	row := make([]byte, 0, b.Dx()*3)
	for y := 0; y < b.Dy(); y++ {
		row = row[:0]
		i := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < b.Dx(); x++ {
			row = append(row, img.Pix[i], img.Pix[i+1], img.Pix[i+2])
			i += 4
		}
		h.Write(row)
	}
	return hex.EncodeToString(h.Sum(nil))
}

package score

import (
	"image"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"
)

const (
	ssimWindow = 8

	// Stabilizers for 8-bit dynamic range: (0.01·255)² and (0.03·255)²
	ssimC1 = 6.5025
	ssimC2 = 58.5225
)

// SSIM scores regions by 1 − mean structural similarity of their luma over
// non-overlapping 8x8 windows. Leftover rows and columns are folded into the
// last window, and regions smaller than a window form a single window.
//
// The score is 0 for identical regions and at most 2.
type SSIM struct {
	// RGB compares the red, green and blue planes separately and averages
	// them instead of comparing luma.
	RGB bool
}

// Score implements Scorer.
func (m SSIM) Score(region, tile *image.NRGBA) float64 {
	if !sameSize(region, tile) {
		return Mismatch
	}

	bounds := region.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width*height == 0 {
		return 0
	}

	as := m.planes(region)
	bs := m.planes(tile)

	cols := windowEdges(width)
	rows := windowEdges(height)

	xs := make([]float64, 0, 4*ssimWindow*ssimWindow)
	ys := make([]float64, 0, 4*ssimWindow*ssimWindow)

	var total float64
	var windows int
	for p := range as {
		a, b := as[p], bs[p]
		for r := 0; r+1 < len(rows); r++ {
			for c := 0; c+1 < len(cols); c++ {
				xs, ys = xs[:0], ys[:0]
				for y := rows[r]; y < rows[r+1]; y++ {
					xs = append(xs, a[y*width+cols[c]:y*width+cols[c+1]]...)
					ys = append(ys, b[y*width+cols[c]:y*width+cols[c+1]]...)
				}
				total += windowSSIM(xs, ys)
				windows++
			}
		}
	}

	s := 1 - total/float64(windows)
	if s < 0 {
		return 0
	}
	return s
}

// windowSSIM evaluates the SSIM formula for one window. Variances use the same
// covariance routine as the cross term so identical inputs give exactly 1.
func windowSSIM(xs, ys []float64) float64 {
	mx := stat.Mean(xs, nil)
	my := stat.Mean(ys, nil)

	var vx, vy, cov float64
	if len(xs) > 1 {
		vx = stat.Covariance(xs, xs, nil)
		vy = stat.Covariance(ys, ys, nil)
		cov = stat.Covariance(xs, ys, nil)
	}

	num := (2*mx*my + ssimC1) * (2*cov + ssimC2)
	den := (mx*mx + my*my + ssimC1) * (vx + vy + ssimC2)
	return num / den
}

// windowEdges splits n into window boundaries of ssimWindow, folding any
// remainder into the final window.
func windowEdges(n int) []int {
	edges := []int{0}
	for next := ssimWindow; next+ssimWindow <= n; next += ssimWindow {
		edges = append(edges, next)
	}
	return append(edges, n)
}

// planes returns the sample planes compared by m.
func (m SSIM) planes(img *image.NRGBA) [][]float64 {
	if !m.RGB {
		return [][]float64{luma(img)}
	}

	bounds := img.Bounds()
	n := bounds.Dx() * bounds.Dy()
	out := [][]float64{make([]float64, 0, n), make([]float64, 0, n), make([]float64, 0, n)}
	for y := 0; y < bounds.Dy(); y++ {
		i := rowOffset(img, y)
		for x := 0; x < bounds.Dx(); x++ {
			for c := 0; c < 3; c++ {
				out[c] = append(out[c], float64(img.Pix[i+c]))
			}
			i += 4
		}
	}
	return out
}

// luma converts img to a row-major slice of luma samples.
func luma(img *image.NRGBA) []float64 {
	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	out := make([]float64, 0, bounds.Dx()*bounds.Dy())
	for y := 0; y < bounds.Dy(); y++ {
		i := rowOffset(gray, y)
		for x := 0; x < bounds.Dx(); x++ {
			out = append(out, float64(gray.Pix[i]))
			i += 4
		}
	}
	return out
}

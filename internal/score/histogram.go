package score

import "image"

// Histogram scores regions by the symmetric chi-square distance between their
// normalized 256-bin luma histograms:
//
//	sum over bins of (p - q)² / (p + q)
//
// It ignores where pixels are, so it is only useful when tiles have distinct
// tonal distributions. Scores range over [0, 2].
type Histogram struct{}

// Score implements Scorer.
func (Histogram) Score(region, tile *image.NRGBA) float64 {
	if !sameSize(region, tile) {
		return Mismatch
	}

	bounds := region.Bounds()
	if bounds.Dx()*bounds.Dy() == 0 {
		return 0
	}

	p := lumaHistogram(region)
	q := lumaHistogram(tile)

	var d float64
	for i := range p {
		if s := p[i] + q[i]; s > 0 {
			diff := p[i] - q[i]
			d += diff * diff / s
		}
	}
	return d
}

func lumaHistogram(img *image.NRGBA) [256]float64 {
	var hist [256]float64
	samples := luma(img)
	for _, v := range samples {
		hist[int(v)]++
	}

	n := float64(len(samples))
	for i := range hist {
		hist[i] /= n
	}
	return hist
}

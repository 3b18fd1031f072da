package score

import "image"

// Exact scores 0 when every RGB sample of the two regions matches and 1
// otherwise. Alpha is ignored.
type Exact struct{}

// Score implements Scorer.
func (Exact) Score(region, tile *image.NRGBA) float64 {
	if !sameSize(region, tile) {
		return Mismatch
	}

	bounds := region.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	for y := 0; y < height; y++ {
		i := rowOffset(region, y)
		j := rowOffset(tile, y)
		for x := 0; x < width; x++ {
			if region.Pix[i] != tile.Pix[j] || region.Pix[i+1] != tile.Pix[j+1] || region.Pix[i+2] != tile.Pix[j+2] {
				return 1
			}
			i += 4
			j += 4
		}
	}
	return 0
}

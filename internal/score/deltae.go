package score

import (
	"image"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// DeltaE scores regions by the mean CIE76 color difference (Euclidean distance
// in L*a*b*) between corresponding pixels. One unit is roughly the smallest
// difference a viewer notices.
type DeltaE struct{}

// Score implements Scorer.
func (DeltaE) Score(region, tile *image.NRGBA) float64 {
	if !sameSize(region, tile) {
		return Mismatch
	}

	bounds := region.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width*height == 0 {
		return 0
	}

	var total float64
	for y := 0; y < height; y++ {
		i := rowOffset(region, y)
		j := rowOffset(tile, y)

		for x := 0; x < width; x++ {
			a, b := region.Pix[i:i+3], tile.Pix[j:j+3]
			if a[0] != b[0] || a[1] != b[1] || a[2] != b[2] {
				total += toColorful(a).DistanceLab(toColorful(b))
			}
			i += 4
			j += 4
		}
	}
	return total / float64(width*height)
}

func toColorful(rgb []uint8) colorful.Color {
	return colorful.Color{
		R: float64(rgb[0]) / 255.0,
		G: float64(rgb[1]) / 255.0,
		B: float64(rgb[2]) / 255.0,
	}
}

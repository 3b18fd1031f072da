package score

import "image"

// sadScale normalizes the weighted cost to a reasonable range.
const sadScale = 1.5378700499807766243752402921953e-6

// SAD scores regions by a perceptually weighted sum of absolute differences.
// For each pixel:
//
//	value = |R1-R2| + |G1-G2| + |B1-B2|
//	cost  = scale × value × (255 + 9×value)
//
// The quadratic term makes large differences dominate. The total is averaged
// over the pixel count so tiles of different sizes compare fairly.
type SAD struct{}

// Score implements Scorer.
func (SAD) Score(region, tile *image.NRGBA) float64 {
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
			value := absDiff(region.Pix[i+0], tile.Pix[j+0]) +
				absDiff(region.Pix[i+1], tile.Pix[j+1]) +
				absDiff(region.Pix[i+2], tile.Pix[j+2])

			total += float64(value * (255 + 9*value))
			i += 4
			j += 4
		}
	}

	return total * sadScale / float64(width*height)
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

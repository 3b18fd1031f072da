package score

import (
	"image"
	"sync"
)

// defaultMinRows is the smallest row range worth handing to its own goroutine.
const defaultMinRows = 16

// MSE scores regions by mean squared error over the RGB channels:
//
//	sum over pixels of (dr² + dg² + db²) / 3, divided by the pixel count
//
// Rows are partitioned across up to Workers goroutines. Every partial sum is an
// exact integer, so the result does not depend on the partition count.
type MSE struct {
	// Workers bounds the number of row partitions. Values below 2 score inline.
	Workers int

	// MinRows is the smallest partition height; 0 selects a default.
	MinRows int
}

// Score implements Scorer.
func (m *MSE) Score(region, tile *image.NRGBA) float64 {
	if !sameSize(region, tile) {
		return Mismatch
	}

	height := region.Bounds().Dy()
	minRows := m.MinRows
	if minRows <= 0 {
		minRows = defaultMinRows
	}

	parts := m.Workers
	if limit := height / minRows; parts > limit {
		parts = limit
	}
	return mseWithPartitions(region, tile, parts)
}

// mseWithPartitions computes the MSE with the rows split into parts contiguous
// ranges. The last range absorbs the remainder.
func mseWithPartitions(region, tile *image.NRGBA, parts int) float64 {
	bounds := region.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	pixels := width * height
	if pixels == 0 {
		return 0
	}

	if parts <= 1 {
		return squaredErrorRows(region, tile, 0, height) / float64(3*pixels)
	}

	chunk := height / parts
	partials := make([]float64, parts)

	var wg sync.WaitGroup
	for i := 0; i < parts; i++ {
		start := i * chunk
		end := start + chunk
		if i == parts-1 {
			end = height
		}

		wg.Add(1)
		go func(i, start, end int) {
			defer wg.Done()
			partials[i] = squaredErrorRows(region, tile, start, end)
		}(i, start, end)
	}
	wg.Wait()

	var sum float64
	for _, p := range partials {
		sum += p
	}
	return sum / float64(3*pixels)
}

// squaredErrorRows returns the sum of squared RGB differences over rows
// [start, end). Alpha is ignored.
func squaredErrorRows(a, b *image.NRGBA, start, end int) float64 {
	width := a.Bounds().Dx()

	var sum float64
	for y := start; y < end; y++ {
		i := rowOffset(a, y)
		j := rowOffset(b, y)

		// A row of 8-bit samples fits easily in int64 (max 255² × 3 per pixel)
		var row int64
		for x := 0; x < width; x++ {
			dr := int64(a.Pix[i+0]) - int64(b.Pix[j+0])
			dg := int64(a.Pix[i+1]) - int64(b.Pix[j+1])
			db := int64(a.Pix[i+2]) - int64(b.Pix[j+2])
			row += dr*dr + dg*dg + db*db
			i += 4
			j += 4
		}
		sum += float64(row)
	}
	return sum
}

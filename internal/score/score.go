// Package score implements the similarity metrics used to match a tile
// against the reference region under the canvas cursor.
package score

import (
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"
	"strings"
)

// Mismatch is the score reported when the two regions differ in size.
// It loses against every real score, so a clipped crop simply loses the round.
const Mismatch = math.MaxFloat64

// Scorer computes a non-negative dissimilarity between a reference region and
// a tile. Lower means more similar; identical regions score 0.
//
// Implementations must be safe for concurrent use: the engine scores many
// candidates against the same reference at once.
type Scorer interface {
	Score(region, tile *image.NRGBA) float64
}

// Func adapts an ordinary function to the Scorer interface.
type Func func(region, tile *image.NRGBA) float64

// Score calls f(region, tile).
func (f Func) Score(region, tile *image.NRGBA) float64 {
	return f(region, tile)
}

// Name identifies a scorer implementation.
type Name string

const (
	NameMSE       Name = "mse"
	NameSAD       Name = "sad"
	NameSSIM      Name = "ssim"
	NameSSIMRGB   Name = "ssim-rgb"
	NameExact     Name = "exact"
	NameHistogram Name = "histogram"
	NameDeltaE    Name = "deltae"
)

// ErrUnknownScorer is returned when the name does not match a known scorer.
var ErrUnknownScorer = errors.New("unknown scorer")

// NormalizeName maps arbitrary user input to a canonical scorer name.
func NormalizeName(name string) Name {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mse":
		return NameMSE
	case "sad":
		return NameSAD
	case "ssim", "mssim":
		return NameSSIM
	case "ssim-rgb", "mssim-rgb", "rgb-ssim":
		return NameSSIMRGB
	case "exact", "px", "pixel":
		return NameExact
	case "histogram", "hist":
		return NameHistogram
	case "deltae", "lab", "cie76":
		return NameDeltaE
	default:
		return Name(name)
	}
}

// Names returns the scorers understood by New.
func Names() []Name {
	return []Name{NameMSE, NameSAD, NameSSIM, NameSSIMRGB, NameHistogram, NameDeltaE, NameExact}
}

// New constructs the named scorer. workers bounds the row partitions used by
// the MSE scorer; values below 1 mean one partition per CPU.
func New(name string, workers int) (Scorer, error) {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	switch NormalizeName(name) {
	case NameMSE:
		return &MSE{Workers: workers}, nil
	case NameSAD:
		return SAD{}, nil
	case NameSSIM:
		return SSIM{}, nil
	case NameSSIMRGB:
		return SSIM{RGB: true}, nil
	case NameHistogram:
		return Histogram{}, nil
	case NameDeltaE:
		return DeltaE{}, nil
	case NameExact:
		return Exact{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownScorer, name)
	}
}

// sameSize reports whether a and b have identical width and height.
func sameSize(a, b *image.NRGBA) bool {
	ab, bb := a.Bounds(), b.Bounds()
	return ab.Dx() == bb.Dx() && ab.Dy() == bb.Dy()
}

// rowOffset returns the Pix index of the first pixel of row y (relative to the
// image origin).
func rowOffset(img *image.NRGBA, y int) int {
	return img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
}

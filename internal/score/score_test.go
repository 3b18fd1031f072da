package score

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"sync"
	"testing"
)

// ---------------------- Test Utilities ----------------------

// randomNRGBA creates an opaque NRGBA image with random RGB values
func randomNRGBA(width, height int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = uint8(rng.Intn(256))
		img.Pix[i+1] = uint8(rng.Intn(256))
		img.Pix[i+2] = uint8(rng.Intn(256))
		img.Pix[i+3] = 255
	}
	return img
}

// solidColorNRGBA creates an NRGBA image with a solid color
func solidColorNRGBA(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// cloneNRGBA creates a deep copy of an NRGBA image
func cloneNRGBA(src *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

func allScorers() map[Name]Scorer {
	scorers := make(map[Name]Scorer)
	for _, name := range Names() {
		s, err := New(string(name), 4)
		if err != nil {
			panic(err)
		}
		scorers[name] = s
	}
	return scorers
}

// ---------------------- Properties shared by every scorer ----------------------

func TestScorers_Identity(t *testing.T) {
	sizes := []struct {
		width, height int
	}{
		{1, 1},
		{6, 6},
		{17, 23}, // Non-multiple of the SSIM window
		{64, 48},
	}

	for name, s := range allScorers() {
		for _, sz := range sizes {
			t.Run(fmt.Sprintf("%s/%dx%d", name, sz.width, sz.height), func(t *testing.T) {
				img := randomNRGBA(sz.width, sz.height, 42)

				if got := s.Score(img, cloneNRGBA(img)); got != 0 {
					t.Errorf("score of identical regions should be 0, got %g", got)
				}
			})
		}
	}
}

func TestScorers_Symmetry(t *testing.T) {
	for name, s := range allScorers() {
		t.Run(string(name), func(t *testing.T) {
			a := randomNRGBA(19, 13, 1)
			b := randomNRGBA(19, 13, 2)

			ab := s.Score(a, b)
			ba := s.Score(b, a)
			if ab != ba {
				t.Errorf("score(a,b)=%g, score(b,a)=%g", ab, ba)
			}
			if ab <= 0 {
				t.Errorf("different regions should score > 0, got %g", ab)
			}
		})
	}
}

func TestScorers_DimensionMismatch(t *testing.T) {
	for name, s := range allScorers() {
		t.Run(string(name), func(t *testing.T) {
			a := randomNRGBA(8, 8, 1)

			if got := s.Score(a, randomNRGBA(8, 7, 1)); got != Mismatch {
				t.Errorf("height mismatch: got %g, want sentinel", got)
			}
			if got := s.Score(a, randomNRGBA(7, 8, 1)); got != Mismatch {
				t.Errorf("width mismatch: got %g, want sentinel", got)
			}
		})
	}
}

func TestScorers_EmptyRegions(t *testing.T) {
	for name, s := range allScorers() {
		t.Run(string(name), func(t *testing.T) {
			if got := s.Score(&image.NRGBA{}, &image.NRGBA{}); got != 0 {
				t.Errorf("empty regions should score 0, got %g", got)
			}
		})
	}
}

func TestScorers_ConcurrentUse(t *testing.T) {
	ref := randomNRGBA(32, 32, 7)
	tiles := make([]*image.NRGBA, 16)
	for i := range tiles {
		tiles[i] = randomNRGBA(32, 32, int64(100+i))
	}

	for name, s := range allScorers() {
		t.Run(string(name), func(t *testing.T) {
			want := make([]float64, len(tiles))
			for i, tile := range tiles {
				want[i] = s.Score(ref, tile)
			}

			got := make([]float64, len(tiles))
			var wg sync.WaitGroup
			for i, tile := range tiles {
				wg.Add(1)
				go func(i int, tile *image.NRGBA) {
					defer wg.Done()
					got[i] = s.Score(ref, tile)
				}(i, tile)
			}
			wg.Wait()

			for i := range want {
				if got[i] != want[i] {
					t.Errorf("tile %d: concurrent score %g differs from sequential %g", i, got[i], want[i])
				}
			}
		})
	}
}

// ---------------------- MSE ----------------------

func TestMSE_KnownDifference(t *testing.T) {
	img1 := solidColorNRGBA(2, 2, color.NRGBA{R: 100, G: 150, B: 200, A: 255})
	img2 := solidColorNRGBA(2, 2, color.NRGBA{R: 110, G: 140, B: 210, A: 255})

	// Per pixel: (100 + 100 + 100) / 3 = 100, averaged over 4 pixels = 100
	got := (&MSE{Workers: 1}).Score(img1, img2)
	if math.Abs(got-100.0) > 1e-9 {
		t.Errorf("Expected MSE = 100, got %f", got)
	}
}

func TestMSE_MaxDifference(t *testing.T) {
	white := solidColorNRGBA(10, 10, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	black := solidColorNRGBA(10, 10, color.NRGBA{R: 0, G: 0, B: 0, A: 255})

	if got := (&MSE{Workers: 4}).Score(white, black); got != 65025.0 {
		t.Errorf("Expected MSE = 65025, got %f", got)
	}
}

func TestMSE_SinglePixel(t *testing.T) {
	img1 := solidColorNRGBA(2, 2, color.NRGBA{255, 255, 255, 255})
	img2 := cloneNRGBA(img1)
	img2.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 255})

	// (0 + 65025 + 65025) / 3 / 4 pixels
	want := 10837.5
	if got := (&MSE{}).Score(img1, img2); got != want {
		t.Errorf("Expected MSE = %f, got %f", want, got)
	}
}

func TestMSE_IgnoresAlpha(t *testing.T) {
	a := randomNRGBA(5, 5, 3)
	b := cloneNRGBA(a)
	for i := 3; i < len(b.Pix); i += 4 {
		b.Pix[i] = 0
	}

	if got := (&MSE{}).Score(a, b); got != 0 {
		t.Errorf("alpha-only difference should score 0, got %f", got)
	}
}

func TestMSE_ScalesWithSquaredOffset(t *testing.T) {
	base := randomNRGBA(12, 9, 11)
	// Keep samples in [0, 200] so every offset below stays in range
	for i := 0; i < len(base.Pix); i += 4 {
		base.Pix[i+0] %= 201
		base.Pix[i+1] %= 201
		base.Pix[i+2] %= 201
	}

	mse := &MSE{Workers: 3, MinRows: 1}
	for _, delta := range []int{1, 2, 5, 10, 55} {
		t.Run(fmt.Sprintf("delta=%d", delta), func(t *testing.T) {
			shifted := cloneNRGBA(base)
			for i := 0; i < len(shifted.Pix); i += 4 {
				shifted.Pix[i+0] += uint8(delta)
				shifted.Pix[i+1] += uint8(delta)
				shifted.Pix[i+2] += uint8(delta)
			}

			want := float64(delta * delta)
			if got := mse.Score(base, shifted); math.Abs(got-want) > 1e-9 {
				t.Errorf("offset %d: got %f, want %f", delta, got, want)
			}
		})
	}
}

func TestMSE_PartitionInvariance(t *testing.T) {
	a := randomNRGBA(37, 53, 5)
	b := randomNRGBA(37, 53, 6)

	reference := mseWithPartitions(a, b, 1)

	for _, parts := range []int{2, 3, 4, 7, 16, 53} {
		t.Run(fmt.Sprintf("parts=%d", parts), func(t *testing.T) {
			got := mseWithPartitions(a, b, parts)
			if math.Abs(got-reference) > 1e-9*reference {
				t.Errorf("parts=%d: got %f, want %f", parts, got, reference)
			}
		})
	}
}

func TestMSE_PartialSumsAdd(t *testing.T) {
	a := randomNRGBA(20, 30, 8)
	b := randomNRGBA(20, 30, 9)

	whole := squaredErrorRows(a, b, 0, 30)

	// Arbitrary uneven split
	splits := []int{0, 1, 4, 11, 12, 29, 30}
	var sum float64
	for i := 0; i+1 < len(splits); i++ {
		sum += squaredErrorRows(a, b, splits[i], splits[i+1])
	}

	if sum != whole {
		t.Errorf("sum of partial rows %f != whole %f", sum, whole)
	}
}

func TestMSE_SubImageOrigin(t *testing.T) {
	parent := randomNRGBA(20, 20, 10)
	sub := parent.SubImage(image.Rect(5, 6, 13, 16)).(*image.NRGBA)

	cropped := image.NewNRGBA(image.Rect(0, 0, 8, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 8; x++ {
			cropped.SetNRGBA(x, y, parent.NRGBAAt(x+5, y+6))
		}
	}

	if got := (&MSE{}).Score(sub, cropped); got != 0 {
		t.Errorf("sub-image and its copy should score 0, got %f", got)
	}
}

// ---------------------- Other scorers ----------------------

func TestSAD_KnownValue(t *testing.T) {
	a := solidColorNRGBA(3, 3, color.NRGBA{10, 20, 30, 255})
	b := solidColorNRGBA(3, 3, color.NRGBA{13, 18, 30, 255})

	// value = 3 + 2 + 0 = 5; weighted = 5 * (255 + 45) = 1500 per pixel
	want := 1500 * sadScale
	if got := (SAD{}).Score(a, b); math.Abs(got-want) > 1e-15 {
		t.Errorf("got %g, want %g", got, want)
	}
}

func TestSSIM_PrefersStructure(t *testing.T) {
	ref := randomNRGBA(24, 24, 12)

	// Small uniform brightness shift keeps structure; a random image does not
	shifted := cloneNRGBA(ref)
	for i := 0; i < len(shifted.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			if shifted.Pix[i+c] < 250 {
				shifted.Pix[i+c] += 5
			}
		}
	}
	noise := randomNRGBA(24, 24, 13)

	s := SSIM{}
	if s.Score(ref, shifted) >= s.Score(ref, noise) {
		t.Errorf("shifted copy (%g) should score better than noise (%g)", s.Score(ref, shifted), s.Score(ref, noise))
	}
}

func TestSSIM_RGBSeesChroma(t *testing.T) {
	// Pure red and a mid green share a luma of 76
	red := solidColorNRGBA(8, 8, color.NRGBA{R: 255, A: 255})
	green := solidColorNRGBA(8, 8, color.NRGBA{G: 130, A: 255})

	if got := (SSIM{}).Score(red, green); got != 0 {
		t.Errorf("luma SSIM = %g, want 0 for equal luma", got)
	}
	if got := (SSIM{RGB: true}).Score(red, green); got < 0.5 {
		t.Errorf("RGB SSIM = %g, want a clear difference", got)
	}
}

func TestExact(t *testing.T) {
	a := randomNRGBA(6, 6, 3)

	b := cloneNRGBA(a)
	b.Pix[3] = 17 // Alpha only
	if got := (Exact{}).Score(a, b); got != 0 {
		t.Errorf("alpha-only change scored %g, want 0", got)
	}

	b.Pix[4*20+1]++
	if got := (Exact{}).Score(a, b); got != 1 {
		t.Errorf("one changed sample scored %g, want 1", got)
	}
}

func TestWindowEdges(t *testing.T) {
	tests := []struct {
		n    int
		want []int
	}{
		{1, []int{0, 1}},
		{7, []int{0, 7}},
		{8, []int{0, 8}},
		{15, []int{0, 15}},
		{16, []int{0, 8, 16}},
		{23, []int{0, 8, 23}},
		{24, []int{0, 8, 16, 24}},
	}

	for _, tt := range tests {
		got := windowEdges(tt.n)
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("windowEdges(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestHistogram_IgnoresPosition(t *testing.T) {
	a := randomNRGBA(10, 10, 14)

	// Mirror horizontally: same histogram, different layout
	b := image.NewNRGBA(a.Bounds())
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			b.SetNRGBA(9-x, y, a.NRGBAAt(x, y))
		}
	}

	if got := (Histogram{}).Score(a, b); got != 0 {
		t.Errorf("mirrored region should have identical histogram, got %g", got)
	}

	white := solidColorNRGBA(10, 10, color.NRGBA{255, 255, 255, 255})
	black := solidColorNRGBA(10, 10, color.NRGBA{0, 0, 0, 255})
	if got := (Histogram{}).Score(white, black); math.Abs(got-2) > 1e-12 {
		t.Errorf("disjoint histograms should score 2, got %g", got)
	}
}

func TestDeltaE_BlackWhite(t *testing.T) {
	white := solidColorNRGBA(4, 4, color.NRGBA{255, 255, 255, 255})
	black := solidColorNRGBA(4, 4, color.NRGBA{0, 0, 0, 255})

	// L* spans 0..100 between black and white; DistanceLab works on L in [0,1]
	got := (DeltaE{}).Score(white, black)
	if math.Abs(got-1.0) > 1e-3 {
		t.Errorf("black vs white: got %g, want ~1.0", got)
	}
}

// ---------------------- Registry ----------------------

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want Name
	}{
		{"", NameMSE},
		{" MSE ", NameMSE},
		{"sad", NameSAD},
		{"MSSIM", NameSSIM},
		{"hist", NameHistogram},
		{"lab", NameDeltaE},
		{"rgb-ssim", NameSSIMRGB},
		{"PX", NameExact},
		{"bogus", Name("bogus")},
	}

	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_Unknown(t *testing.T) {
	_, err := New("bogus", 1)
	if !errors.Is(err, ErrUnknownScorer) {
		t.Errorf("expected ErrUnknownScorer, got %v", err)
	}
}

func TestNew_DefaultWorkers(t *testing.T) {
	s, err := New("mse", 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if m, ok := s.(*MSE); !ok || m.Workers < 1 {
		t.Errorf("expected *MSE with at least one worker, got %#v", s)
	}
}

func TestFunc(t *testing.T) {
	calls := 0
	var s Scorer = Func(func(region, tile *image.NRGBA) float64 {
		calls++
		return 1.5
	})

	if got := s.Score(nil, nil); got != 1.5 || calls != 1 {
		t.Errorf("Func adapter: got %g after %d calls", got, calls)
	}
}

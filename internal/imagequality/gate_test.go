package imagequality

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func checker(w, h int, lo, hi uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := lo
			if (x+y)%2 == 0 {
				v = hi
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func uniform(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestCheckRules(t *testing.T) {
	cases := []struct {
		name string
		img  image.Image
		want Verdict
	}{
		{"sharp mid-tone", checker(32, 32, 0, 255), Verdict{Passed: true, Reason: ReasonGood}},
		{"flat image is blurry", uniform(32, 32, 128), Verdict{Reason: ReasonBlurry}},
		{"sharp but dark", checker(32, 32, 0, 60), Verdict{Reason: ReasonDark}},
		{"sharp but bright", checker(32, 32, 200, 255), Verdict{Reason: ReasonBright}},
		{"blur wins over darkness", uniform(32, 32, 5), Verdict{Reason: ReasonBlurry}},
		{"empty", image.NewGray(image.Rect(0, 0, 0, 0)), Verdict{Reason: ReasonUnreadable}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Check(tc.img))
		})
	}
}

func TestCheckBytes(t *testing.T) {
	require.Equal(t, Verdict{Reason: ReasonUnreadable}, CheckBytes([]byte("not an image")))

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, checker(16, 16, 0, 255)))
	require.Equal(t, Verdict{Passed: true, Reason: ReasonGood}, CheckBytes(buf.Bytes()))
}

func TestMeasure(t *testing.T) {
	_, m := NewGate(DefaultThresholds).Measure(checker(8, 8, 0, 60))
	require.InDelta(t, 30, m.Brightness, 0.5)
	require.Greater(t, m.Sharpness, 1000.0)

	_, m = NewGate(DefaultThresholds).Measure(uniform(8, 8, 90))
	require.InDelta(t, 0, m.Sharpness, 1e-9)
}

func TestLargeImagesAreDownscaled(t *testing.T) {
	g := NewGate(Thresholds{MinSharpness: 100, MinBrightness: 40, MaxBrightness: 220, MaxDimension: 64})
	v := g.Check(uniform(300, 100, 128))
	require.Equal(t, ReasonBlurry, v.Reason)
}

func TestCustomThresholds(t *testing.T) {
	g := NewGate(Thresholds{MinSharpness: 0, MinBrightness: 0, MaxBrightness: 255})
	require.True(t, g.Check(uniform(4, 4, 128)).Passed)
}

func TestReflect101(t *testing.T) {
	require.Equal(t, 1, reflect101(-1, 5))
	require.Equal(t, 3, reflect101(5, 5))
	require.Equal(t, 0, reflect101(-1, 1))
	require.Equal(t, 2, reflect101(2, 5))
}

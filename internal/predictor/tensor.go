package predictor

import (
	"encoding/json"
	"image"

	"github.com/disintegration/imaging"

	"github.com/joseph-ayodele/farm-advisor/internal/utils"
)

// ClassifierInputSize is the square edge the disease classifier was trained on.
const ClassifierInputSize = 224

const (
	contrastFactor  = 1.2
	sharpnessFactor = 1.3
)

// Tensor is a single HWC image with channel values in [0,1].
type Tensor struct {
	Height, Width, Channels int
	Data                    []float32
}

func (t Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Width+x)*t.Channels+c]
}

// MarshalJSON renders the tensor as nested [h][w][c] arrays, the row format
// model servers expect for one instance.
func (t Tensor) MarshalJSON() ([]byte, error) {
	rows := make([][][]float32, t.Height)
	for y := range rows {
		rows[y] = make([][]float32, t.Width)
		for x := range rows[y] {
			off := (y*t.Width + x) * t.Channels
			rows[y][x] = t.Data[off : off+t.Channels]
		}
	}
	return json.Marshal(rows)
}

// PrepareImage enhances contrast and sharpness, resizes to the classifier input
// and scales to [0,1].
func PrepareImage(img image.Image) Tensor {
	enhanced := utils.EnhanceSharpness(utils.EnhanceContrast(img, contrastFactor), sharpnessFactor)
	resized := imaging.Resize(enhanced, ClassifierInputSize, ClassifierInputSize, imaging.CatmullRom)

	t := Tensor{Height: ClassifierInputSize, Width: ClassifierInputSize, Channels: 3}
	t.Data = make([]float32, t.Height*t.Width*t.Channels)
	for y := 0; y < t.Height; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < t.Width; x++ {
			off := (y*t.Width + x) * 3
			t.Data[off] = float32(row[x*4]) / 255
			t.Data[off+1] = float32(row[x*4+1]) / 255
			t.Data[off+2] = float32(row[x*4+2]) / 255
		}
	}
	return t
}

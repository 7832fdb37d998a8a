package extractor

import (
	"image"

	"golang.org/x/image/draw"
)

// Нормализация каналов, с которой обучались ImageNet-модели.
var (
	channelMean = [3]float32{0.485, 0.456, 0.406}
	channelStd  = [3]float32{0.229, 0.224, 0.225}
)

// Tensor хранит нормализованное изображение в раскладке CHW (3 × Size × Size).
type Tensor struct {
	Size int
	Data []float32
}

// At возвращает значение канала c в точке (x, y).
func (t *Tensor) At(c, x, y int) float32 {
	return t.Data[c*t.Size*t.Size+y*t.Size+x]
}

// Preprocessor приводит изображение к входу модели: квадрат Size×Size, RGB в [0,1], нормализация.
// Один и тот же пайплайн используется при сборке каталога и при запросах.
type Preprocessor struct {
	size int
}

func NewPreprocessor(size int) *Preprocessor {
	return &Preprocessor{size: size}
}

func (p *Preprocessor) Size() int {
	return p.size
}

// Tensor масштабирует изображение билинейно и нормализует каналы. Альфа-канал отбрасывается.
func (p *Preprocessor) Tensor(img image.Image) *Tensor {
	s := p.size
	dst := image.NewNRGBA(image.Rect(0, 0, s, s))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := s * s
	data := make([]float32, 3*plane)
	for y := 0; y < s; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < s; x++ {
			px := row[x*4 : x*4+3]
			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255
				data[c*plane+y*s+x] = (v - channelMean[c]) / channelStd[c]
			}
		}
	}

	return &Tensor{Size: s, Data: data}
}

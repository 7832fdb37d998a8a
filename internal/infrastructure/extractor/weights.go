package extractor

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/DRSN-tech/product-matcher/pkg/e"
)

const (
	weightsMagic = "PMWT"
	// maxProjectionSize ограничивает in*out, чтобы битый заголовок не приводил к огромной аллокации
	maxProjectionSize = 64 << 20
)

// Projection описывает линейный слой W·x + b с ReLU, W хранится построчно (Out × In).
type Projection struct {
	In      int
	Out     int
	Weights []float32
	Bias    []float32
}

// Apply применяет слой к вектору длины In.
func (p *Projection) Apply(x []float32) []float32 {
	out := make([]float32, p.Out)
	for i := 0; i < p.Out; i++ {
		row := p.Weights[i*p.In : (i+1)*p.In]
		sum := float64(p.Bias[i])
		for j, w := range row {
			sum += float64(w) * float64(x[j])
		}
		if sum > 0 {
			out[i] = float32(sum)
		}
	}
	return out
}

// LoadProjection читает PMWT-файл. Любая ошибка оборачивается в e.ErrModelUnavailable.
func LoadProjection(path string) (*Projection, error) {
	const op = "extractor.LoadProjection"

	f, err := os.Open(path)
	if err != nil {
		return nil, e.Wrap(op, e.Join(e.ErrModelUnavailable, err))
	}
	defer f.Close()

	p, err := DecodeProjection(bufio.NewReader(f))
	if err != nil {
		return nil, e.Wrap(fmt.Sprintf("%s %s", op, path), err)
	}
	return p, nil
}

// DecodeProjection разбирает PMWT: magic, in u32, out u32, out*in f32 весов, out f32 смещений.
func DecodeProjection(r io.Reader) (*Projection, error) {
	magic := make([]byte, len(weightsMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, e.Join(e.ErrModelUnavailable, err)
	}
	if string(magic) != weightsMagic {
		return nil, e.Join(e.ErrModelUnavailable, errors.New("bad weights magic"))
	}

	var header [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, e.Join(e.ErrModelUnavailable, err)
	}
	in, out := int(header[0]), int(header[1])
	if in == 0 || out == 0 || uint64(in)*uint64(out) > maxProjectionSize {
		return nil, e.Join(e.ErrModelUnavailable, fmt.Errorf("invalid projection shape %dx%d", out, in))
	}

	p := &Projection{
		In:      in,
		Out:     out,
		Weights: make([]float32, in*out),
		Bias:    make([]float32, out),
	}
	if err := binary.Read(r, binary.LittleEndian, p.Weights); err != nil {
		return nil, e.Join(e.ErrModelUnavailable, err)
	}
	if err := binary.Read(r, binary.LittleEndian, p.Bias); err != nil {
		return nil, e.Join(e.ErrModelUnavailable, err)
	}
	for _, w := range p.Weights {
		if math.IsNaN(float64(w)) || math.IsInf(float64(w), 0) {
			return nil, e.Join(e.ErrModelUnavailable, errors.New("non-finite weight"))
		}
	}

	return p, nil
}

// EncodeProjection записывает слой в формате PMWT.
func EncodeProjection(w io.Writer, p *Projection) error {
	if len(p.Weights) != p.In*p.Out || len(p.Bias) != p.Out {
		return fmt.Errorf("projection shape %dx%d does not match data", p.Out, p.In)
	}
	if _, err := io.WriteString(w, weightsMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, [2]uint32{uint32(p.In), uint32(p.Out)}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, p.Weights); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, p.Bias)
}

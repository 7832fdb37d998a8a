package extractor

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/DRSN-tech/product-matcher/pkg/e"
)

// Model описывает нейросеть, превращающая тензор в эмбеддинг. Реализации должны быть детерминированы.
type Model interface {
	Name() string
	Dim() int
	InputSize() int
	Infer(ctx context.Context, t *Tensor) ([]float32, error)
}

// PoolingModel это встроенная модель: адаптивный average pooling каждого канала в сетку G×G
// и необязательная линейная проекция с ReLU.
type PoolingModel struct {
	grid      int
	inputSize int
	proj      *Projection
	name      string
}

// NewPoolingModel создает модель. Если weightsPath не пуст, загружает проекцию;
// ошибка загрузки или несовпадение формы дает e.ErrModelUnavailable.
func NewPoolingModel(inputSize, grid int, weightsPath string) (*PoolingModel, error) {
	const op = "NewPoolingModel"

	if grid < 1 || inputSize < grid {
		return nil, e.Wrap(op, fmt.Errorf("%w: grid %d does not fit input %d", e.ErrModelUnavailable, grid, inputSize))
	}

	m := &PoolingModel{
		grid:      grid,
		inputSize: inputSize,
		name:      fmt.Sprintf("avgpool-g%d-s%d", grid, inputSize),
	}

	if weightsPath != "" {
		proj, err := LoadProjection(weightsPath)
		if err != nil {
			return nil, e.Wrap(op, err)
		}
		if proj.In != m.pooledDim() {
			return nil, e.Wrap(op, fmt.Errorf("%w: projection expects %d inputs, pooling yields %d", e.ErrModelUnavailable, proj.In, m.pooledDim()))
		}
		m.proj = proj
		m.name = fmt.Sprintf("%s+proj-%s", m.name, filepath.Base(weightsPath))
	}

	return m, nil
}

func (m *PoolingModel) Name() string   { return m.name }
func (m *PoolingModel) InputSize() int { return m.inputSize }

func (m *PoolingModel) Dim() int {
	if m.proj != nil {
		return m.proj.Out
	}
	return m.pooledDim()
}

func (m *PoolingModel) pooledDim() int {
	return 3 * m.grid * m.grid
}

// Infer усредняет каждый канал по ячейкам сетки. Границы ячеек: [i*S/G, (i+1)*S/G).
func (m *PoolingModel) Infer(ctx context.Context, t *Tensor) ([]float32, error) {
	const op = "PoolingModel.Infer"

	if t.Size != m.inputSize || len(t.Data) != 3*t.Size*t.Size {
		return nil, e.Wrap(op, fmt.Errorf("tensor %d does not match model input %d", t.Size, m.inputSize))
	}
	if err := ctx.Err(); err != nil {
		return nil, e.Wrap(op, err)
	}

	var (
		g   = m.grid
		s   = t.Size
		out = make([]float32, 0, m.pooledDim())
	)
	for c := 0; c < 3; c++ {
		for gy := 0; gy < g; gy++ {
			y0, y1 := gy*s/g, (gy+1)*s/g
			for gx := 0; gx < g; gx++ {
				x0, x1 := gx*s/g, (gx+1)*s/g

				var sum float64
				for y := y0; y < y1; y++ {
					for x := x0; x < x1; x++ {
						sum += float64(t.At(c, x, y))
					}
				}
				out = append(out, float32(sum/float64((y1-y0)*(x1-x0))))
			}
		}
	}

	if m.proj != nil {
		return m.proj.Apply(out), nil
	}
	return out, nil
}

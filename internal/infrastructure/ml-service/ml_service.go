package ml_service

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/DRSN-tech/product-matcher/internal/infrastructure/extractor"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/jitter"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName     = "ml.v1.MachineLearningService"
	DescribeMethod  = "/" + ServiceName + "/DescribeModel"
	VectorizeMethod = "/" + ServiceName + "/VectorizeTensor"
)

// MLService модель, инференс которой выполняет внешний ML-сервис.
// Тензор передается как little-endian float32 в CHW, в ответе список чисел в поле "vector".
type MLService struct {
	conn       grpc.ClientConnInterface
	maxRetries int
	timeout    time.Duration
	logger     logger.Logger

	name      string
	dim       int
	inputSize int
}

// NewMLService запрашивает описание модели. Ошибка после всех попыток дает e.ErrModelUnavailable.
// defaultInputSize используется, если сервис не сообщил размер входа.
func NewMLService(ctx context.Context, conn grpc.ClientConnInterface, maxRetries int, timeout time.Duration, defaultInputSize int, logger logger.Logger) (*MLService, error) {
	const op = "NewMLService"

	if maxRetries < 1 {
		maxRetries = 1
	}

	m := &MLService{
		conn:       conn,
		maxRetries: maxRetries,
		timeout:    timeout,
		logger:     logger,
	}

	desc := &structpb.Struct{}
	if err := m.invoke(ctx, DescribeMethod, &emptypb.Empty{}, desc); err != nil {
		return nil, e.Wrap(op, e.Join(e.ErrModelUnavailable, err))
	}

	fields := desc.GetFields()
	m.name = fields["model_version"].GetStringValue()
	m.dim = int(fields["dim"].GetNumberValue())
	m.inputSize = int(fields["input_size"].GetNumberValue())
	if m.inputSize <= 0 {
		m.inputSize = defaultInputSize
	}
	if m.name == "" {
		m.name = "remote"
	}
	if m.dim <= 0 || m.inputSize <= 0 {
		return nil, e.Wrap(op, fmt.Errorf("%w: ml service reports dim=%d input_size=%d", e.ErrModelUnavailable, m.dim, m.inputSize))
	}

	return m, nil
}

func (m *MLService) Name() string   { return m.name }
func (m *MLService) Dim() int       { return m.dim }
func (m *MLService) InputSize() int { return m.inputSize }

// Infer отправляет тензор на векторизацию с retry-логикой.
func (m *MLService) Infer(ctx context.Context, t *extractor.Tensor) ([]float32, error) {
	const op = "MLService.Infer"

	res := &structpb.Struct{}
	if err := m.invoke(ctx, VectorizeMethod, wrapperspb.Bytes(EncodeTensor(t.Data)), res); err != nil {
		return nil, e.Wrap(op, err)
	}

	values := res.GetFields()["vector"].GetListValue().GetValues()
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v.GetNumberValue())
	}

	return vec, nil
}

// invoke выполняет вызов с экспоненциальной задержкой между попытками.
// Повторяются только временные ошибки транспорта.
func (m *MLService) invoke(ctx context.Context, method string, in, out any) error {
	const (
		baseJitter = 200 * time.Millisecond
		maxJitter  = 5 * time.Second
	)

	var lastErr error
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		err := m.call(ctx, method, in, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) || attempt == m.maxRetries-1 {
			break
		}

		sleepTime := jitter.ExponentialBackoff(baseJitter, maxJitter, attempt, jitter.DefaultJitter)
		m.logger.Warnf("%s failed, retrying in %v (attempt %d): %v", method, sleepTime, attempt+1, err)
		if err := jitter.Sleep(ctx, sleepTime); err != nil {
			return err
		}
	}

	return fmt.Errorf("%s: %w", method, lastErr)
}

func (m *MLService) call(ctx context.Context, method string, in, out any) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	return m.conn.Invoke(ctx, method, in, out)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.DeadlineExceeded:
		return true
	}
	return false
}

// EncodeTensor сериализует данные тензора в little-endian float32.
func EncodeTensor(data []float32) []byte {
	buf := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeTensor выполняет обратную к EncodeTensor операцию.
func DecodeTensor(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("tensor payload of %d bytes is not a multiple of 4", len(buf))
	}

	data := make([]float32, len(buf)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return data, nil
}

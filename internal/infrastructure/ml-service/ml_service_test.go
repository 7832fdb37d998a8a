package ml_service

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DRSN-tech/product-matcher/internal/infrastructure/extractor"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// fakeML возвращает первые dim чисел тензора; первые failures вызовов отвечают failCode.
type fakeML struct {
	dim         int
	describeErr error
	failures    int32
	failCode    codes.Code
	calls       atomic.Int32
}

func (f *fakeML) describe(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return structpb.NewStruct(map[string]any{
		"dim":           f.dim,
		"model_version": "resnet50-test",
		"input_size":    8,
	})
}

func (f *fakeML) vectorize(_ context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	if n := f.calls.Add(1); n <= f.failures {
		return nil, status.Error(f.failCode, "busy")
	}

	data, err := DecodeTensor(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	vector := make([]any, f.dim)
	for i := range vector {
		vector[i] = float64(data[i])
	}
	return structpb.NewStruct(map[string]any{"vector": vector})
}

func startFake(t *testing.T, f *fakeML) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "DescribeModel",
				Handler: func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
					in := &emptypb.Empty{}
					if err := dec(in); err != nil {
						return nil, err
					}
					return f.describe(ctx, in)
				},
			},
			{
				MethodName: "VectorizeTensor",
				Handler: func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
					in := &wrapperspb.BytesValue{}
					if err := dec(in); err != nil {
						return nil, err
					}
					return f.vectorize(ctx, in)
				},
			},
		},
	}, f)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestMLService_DescribeAndInfer(t *testing.T) {
	conn := startFake(t, &fakeML{dim: 3})

	m, err := NewMLService(context.Background(), conn, 3, time.Second, 224, logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "resnet50-test", m.Name())
	assert.Equal(t, 3, m.Dim())
	assert.Equal(t, 8, m.InputSize())

	vec, err := m.Infer(context.Background(), &extractor.Tensor{Size: 1, Data: []float32{0.5, -1.25, 2}})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1.25, 2}, vec)
}

func TestMLService_RetriesTransientErrors(t *testing.T) {
	fake := &fakeML{dim: 1, failures: 2, failCode: codes.Unavailable}
	conn := startFake(t, fake)

	m, err := NewMLService(context.Background(), conn, 3, time.Second, 224, logger.NewNopLogger())
	require.NoError(t, err)

	vec, err := m.Infer(context.Background(), &extractor.Tensor{Size: 1, Data: []float32{7, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, []float32{7}, vec)
	assert.EqualValues(t, 3, fake.calls.Load())
}

func TestMLService_DoesNotRetryPermanentErrors(t *testing.T) {
	fake := &fakeML{dim: 1, failures: 5, failCode: codes.InvalidArgument}
	conn := startFake(t, fake)

	m, err := NewMLService(context.Background(), conn, 3, time.Second, 224, logger.NewNopLogger())
	require.NoError(t, err)

	_, err = m.Infer(context.Background(), &extractor.Tensor{Size: 1, Data: []float32{1, 2, 3}})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.EqualValues(t, 1, fake.calls.Load())
}

func TestMLService_DescribeFailureIsModelUnavailable(t *testing.T) {
	conn := startFake(t, &fakeML{describeErr: status.Error(codes.Internal, "no model")})

	_, err := NewMLService(context.Background(), conn, 2, time.Second, 224, logger.NewNopLogger())
	assert.ErrorIs(t, err, e.ErrModelUnavailable)

	conn = startFake(t, &fakeML{dim: 0})
	_, err = NewMLService(context.Background(), conn, 1, time.Second, 224, logger.NewNopLogger())
	assert.ErrorIs(t, err, e.ErrModelUnavailable)
}

func TestTensorCodec(t *testing.T) {
	data := []float32{0, 1.5, -3.25}
	got, err := DecodeTensor(EncodeTensor(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = DecodeTensor([]byte{1, 2, 3})
	assert.Error(t, err)
}

package grpc

import (
	"context"
	"math"
	"net"
	"testing"
	"time"

	"github.com/DRSN-tech/product-matcher/internal/cfg"
	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/internal/usecase"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type fakeQueryUC struct {
	lastReq *usecase.IdentifyReq
	res     *usecase.IdentifyRes
	err     error
}

func (f *fakeQueryUC) Identify(_ context.Context, req *usecase.IdentifyReq) (*usecase.IdentifyRes, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func (f *fakeQueryUC) StoreInfo() usecase.StoreInfo { return usecase.StoreInfo{} }

func startServer(t *testing.T, uc usecase.QueryUC) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(&cfg.GRPCConfig{NetworkMode: "tcp"}, 1<<20, logger.NewNopLogger())
	srv.RegisterServices(uc, &cfg.QueryCfg{DefaultTopK: 1, MaxTopK: 5})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})

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

func identify(ctx context.Context, conn *grpc.ClientConn, image []byte) (*structpb.Struct, error) {
	out := &structpb.Struct{}
	err := conn.Invoke(ctx, IdentifyMethod, wrapperspb.Bytes(image), out)
	return out, err
}

func TestMatcherService_Identify(t *testing.T) {
	uc := &fakeQueryUC{res: &usecase.IdentifyRes{Matches: []domain.MatchResult{
		{ID: "3", Name: "Tea", Price: "2.50", URL: "https://shop/3", Similarity: 0.5},
		{ID: "4", Name: "Blank", Similarity: math.NaN()},
	}}}
	conn := startServer(t, uc)

	ctx := metadata.AppendToOutgoingContext(context.Background(), TopKMetadataKey, "9")
	out, err := identify(ctx, conn, []byte("jpeg"))
	require.NoError(t, err)

	assert.Equal(t, 5, uc.lastReq.TopK)
	assert.Equal(t, []byte("jpeg"), uc.lastReq.Image)

	matches := out.GetFields()["matches"].GetListValue().GetValues()
	require.Len(t, matches, 2)
	first := matches[0].GetStructValue().GetFields()
	assert.Equal(t, "Tea", first["name"].GetStringValue())
	assert.InDelta(t, 0.5, first["similarity"].GetNumberValue(), 1e-12)
	_, isNull := matches[1].GetStructValue().GetFields()["similarity"].GetKind().(*structpb.Value_NullValue)
	assert.True(t, isNull)
}

func TestMatcherService_EmptyResultAndDefaultTopK(t *testing.T) {
	uc := &fakeQueryUC{res: &usecase.IdentifyRes{}}
	conn := startServer(t, uc)

	out, err := identify(context.Background(), conn, []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, 1, uc.lastReq.TopK)
	assert.Empty(t, out.GetFields()["matches"].GetListValue().GetValues())
	assert.Equal(t, noMatchMessage, out.GetFields()["message"].GetStringValue())
}

func TestMatcherService_Errors(t *testing.T) {
	tests := []struct {
		name     string
		ucErr    error
		image    []byte
		topK     string
		wantCode codes.Code
	}{
		{name: "decode", ucErr: e.Wrap("op", e.ErrImageDecode), image: []byte("x"), wantCode: codes.InvalidArgument},
		{name: "timeout", ucErr: context.DeadlineExceeded, image: []byte("x"), wantCode: codes.DeadlineExceeded},
		{name: "internal", ucErr: e.ErrDimensionMismatch, image: []byte("x"), wantCode: codes.Internal},
		{name: "empty image", image: nil, wantCode: codes.InvalidArgument},
		{name: "bad top_k", image: []byte("x"), topK: "-2", wantCode: codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := startServer(t, &fakeQueryUC{err: tt.ucErr, res: &usecase.IdentifyRes{}})

			ctx := context.Background()
			if tt.topK != "" {
				ctx = metadata.AppendToOutgoingContext(ctx, TopKMetadataKey, tt.topK)
			}
			_, err := identify(ctx, conn, tt.image)
			assert.Equal(t, tt.wantCode, status.Code(err))
		})
	}
}

func TestGRPCServer_Health(t *testing.T) {
	conn := startServer(t, &fakeQueryUC{})

	res, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: MatcherServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, res.GetStatus())
}

package grpc

import (
	"context"
	"errors"

	"github.com/DRSN-tech/product-matcher/internal/cfg"
	"github.com/DRSN-tech/product-matcher/internal/usecase"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	MatcherServiceName = "productmatcher.v1.MatcherService"
	IdentifyMethod     = "/" + MatcherServiceName + "/Identify"
	TopKMetadataKey    = "x-top-k"
)

// MatcherServiceServer реализует сервис идентификации. Запрос содержит байты изображения,
// ответ приходит как google.protobuf.Struct с полем matches.
type MatcherServiceServer interface {
	Identify(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error)
}

var MatcherServiceDesc = grpc.ServiceDesc{
	ServiceName: MatcherServiceName,
	HandlerType: (*MatcherServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Identify",
			Handler:    identifyHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "productmatcher/v1/matcher.proto",
}

func identifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MatcherServiceServer).Identify(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: IdentifyMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MatcherServiceServer).Identify(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

type MatcherService struct {
	queryUC  usecase.QueryUC
	queryCfg *cfg.QueryCfg
	logger   logger.Logger
}

func NewMatcherService(queryUC usecase.QueryUC, queryCfg *cfg.QueryCfg, logger logger.Logger) *MatcherService {
	return &MatcherService{queryUC: queryUC, queryCfg: queryCfg, logger: logger}
}

func (g *MatcherService) Identify(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	const op = "grpc.Identify"

	topK, err := topKFromMetadata(ctx, g.queryCfg)
	if err != nil {
		g.logger.Warnf("%s: %v", op, err)
		return nil, GRPCErrorResponse(err)
	}

	if len(req.GetValue()) == 0 {
		return nil, GRPCErrorResponse(e.ErrNoImages)
	}

	res, err := g.queryUC.Identify(ctx, usecase.NewIdentifyReq(req.GetValue(), topK))
	if err != nil {
		if errors.Is(err, e.ErrImageDecode) {
			g.logger.Warnf("%s: %v", op, err)
		} else {
			g.logger.Errorf(e.Wrap(op, err), "%s", op)
		}
		return nil, GRPCErrorResponse(e.Wrap(op, err))
	}

	out, err := toGRPCIdentifyResponse(res)
	if err != nil {
		g.logger.Errorf(e.Wrap(op, err), "%s", op)
		return nil, GRPCErrorResponse(err)
	}

	return out, nil
}

package grpc

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/DRSN-tech/product-matcher/internal/cfg"
	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/internal/usecase"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const noMatchMessage = "no match found"

func GRPCErrorResponse(err error) error {
	switch {
	case errors.Is(err, e.ErrImageDecode):
		return status.Error(codes.InvalidArgument, "could not read your image")
	case errors.Is(err, e.ErrNoImages):
		return status.Error(codes.InvalidArgument, e.ErrNoImages.Error())
	case errors.Is(err, e.ErrInvalidTopK):
		return status.Error(codes.InvalidArgument, e.ErrInvalidTopK.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "query timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	default:
		return status.Error(codes.Internal, e.ErrInternalServerError.Error())
	}
}

// topKFromMetadata читает x-top-k. Без заголовка берется значение по умолчанию, слишком большое значение обрезается до максимума.
func topKFromMetadata(ctx context.Context, cfg *cfg.QueryCfg) (int, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get(TopKMetadataKey)
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return cfg.DefaultTopK, nil
	}

	k, err := strconv.Atoi(strings.TrimSpace(values[0]))
	if err != nil || k < 0 {
		return 0, e.Wrap(values[0], e.ErrInvalidTopK)
	}

	return min(k, cfg.MaxTopK), nil
}

func toGRPCMatch(m domain.MatchResult) map[string]any {
	var similarity any
	if !math.IsNaN(m.Similarity) && !math.IsInf(m.Similarity, 0) {
		similarity = m.Similarity
	}

	return map[string]any{
		"id":         m.ID,
		"name":       m.Name,
		"price":      m.Price,
		"url":        m.URL,
		"similarity": similarity,
	}
}

func toGRPCIdentifyResponse(res *usecase.IdentifyRes) (*structpb.Struct, error) {
	matches := make([]any, len(res.Matches))
	for i, m := range res.Matches {
		matches[i] = toGRPCMatch(m)
	}

	fields := map[string]any{
		"matches": matches,
		"cached":  res.Cached,
	}
	if len(matches) == 0 {
		fields["message"] = noMatchMessage
	}

	return structpb.NewStruct(fields)
}

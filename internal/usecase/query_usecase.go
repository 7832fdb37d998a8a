package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
)

// QueryUseCase идентифицирует товар по фото: декодирование, эмбеддинг, поиск по хранилищу.
type QueryUseCase struct {
	extractor FeatureExtractor
	matcher   *Matcher
	cache     ResultCache
	timeout   time.Duration
	logger    logger.Logger
}

func NewQueryUC(extractor FeatureExtractor, matcher *Matcher, cache ResultCache, timeout time.Duration, logger logger.Logger) *QueryUseCase {
	if cache == nil {
		cache = NoopCache{}
	}

	return &QueryUseCase{
		extractor: extractor,
		matcher:   matcher,
		cache:     cache,
		timeout:   timeout,
		logger:    logger,
	}
}

// Identify возвращает не более req.TopK совпадений. Нечитаемое изображение дает e.ErrImageDecode.
// Повторных попыток нет; по истечении ctx ожидание прекращается.
func (q *QueryUseCase) Identify(ctx context.Context, req *IdentifyReq) (*IdentifyRes, error) {
	const op = "QueryUseCase.Identify"

	key := q.cacheKey(req)
	cached, ok, err := q.cache.Get(ctx, key)
	if err != nil {
		q.logger.Warnf("identify cache get failed: %v", err)
	} else if ok {
		return &IdentifyRes{Matches: cached, Cached: true}, nil
	}

	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	vec, err := q.embed(ctx, req.Image)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	matches, err := q.matcher.Query(vec, req.TopK)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if err := q.cache.Set(ctx, key, matches); err != nil {
		q.logger.Warnf("identify cache set failed: %v", err)
	}

	return &IdentifyRes{Matches: matches}, nil
}

func (q *QueryUseCase) StoreInfo() StoreInfo {
	return q.matcher.Info()
}

type embedResult struct {
	vec []float32
	err error
}

// embed выполняет декодирование и инференс вне горутины запроса.
func (q *QueryUseCase) embed(ctx context.Context, image []byte) ([]float32, error) {
	done := make(chan embedResult, 1)
	go func() {
		vec, err := q.extractor.EmbedSource(ctx, domain.RawBytes(image))
		done <- embedResult{vec: vec, err: err}
	}()

	select {
	case res := <-done:
		return res.vec, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// cacheKey привязан к содержимому изображения, topK и версии хранилища.
func (q *QueryUseCase) cacheKey(req *IdentifyReq) string {
	sum := sha256.Sum256(req.Image)
	return "identify:" + q.matcher.Fingerprint() + ":" + strconv.Itoa(req.TopK) + ":" + hex.EncodeToString(sum[:])
}

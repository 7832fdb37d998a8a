package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/pkg/e"
)

// fakeExtractor: Embed возвращает цвет пикселя (0,0) как [r,g,b];
// EmbedSource ищет вектор по содержимому байтов.
type fakeExtractor struct {
	vectors  map[string][]float32
	embedErr error
	block    chan struct{}
	calls    atomic.Int32
}

func (f *fakeExtractor) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	r, g, b, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	return []float32{float32(r) / 0xffff, float32(g) / 0xffff, float32(b) / 0xffff}, nil
}

func (f *fakeExtractor) EmbedSource(ctx context.Context, src domain.ImageSource) ([]float32, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	raw, ok := src.(domain.RawBytes)
	if !ok {
		return nil, fmt.Errorf("unexpected source %s", src)
	}
	vec, ok := f.vectors[string(raw)]
	if !ok {
		return nil, e.Join(e.ErrImageDecode, errors.New("unknown format"))
	}
	return vec, nil
}

func (f *fakeExtractor) Dim() int          { return 3 }
func (f *fakeExtractor) ModelName() string { return "fake-rgb" }

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

type resolveResult struct {
	img image.Image
	err error
}

type fakeResolver struct {
	results map[string]resolveResult
}

func (f *fakeResolver) Resolve(ctx context.Context, row domain.CatalogRow) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, ok := f.results[row.ID]
	if !ok {
		return nil, fmt.Errorf("%w: row %s", e.ErrImageNotFound, row.ID)
	}
	return res.img, res.err
}

type fakeCatalogRepo struct {
	rows []domain.CatalogRow
	err  error
}

func (f *fakeCatalogRepo) ReadFile(context.Context, string) ([]domain.CatalogRow, error) {
	return f.rows, f.err
}

type fakeStoreRepo struct {
	mu       sync.Mutex
	saved    map[string]*domain.EmbeddingStore
	locked   map[string]bool
	saveErr  error
	unlocked int
}

func newFakeStoreRepo() *fakeStoreRepo {
	return &fakeStoreRepo{saved: map[string]*domain.EmbeddingStore{}, locked: map[string]bool{}}
}

func (f *fakeStoreRepo) Save(_ context.Context, path string, store *domain.EmbeddingStore) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[path] = store
	return nil
}

func (f *fakeStoreRepo) Load(_ context.Context, path string) (*domain.EmbeddingStore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	store, ok := f.saved[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return store, nil
}

func (f *fakeStoreRepo) Lock(path string) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked[path] {
		return nil, e.ErrBuildInProgress
	}
	f.locked[path] = true
	return func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.locked, path)
		f.unlocked++
		return nil
	}, nil
}

type fakeArtifacts struct {
	published []string
	err       error
}

func (f *fakeArtifacts) PublishStore(_ context.Context, localPath string) error {
	f.published = append(f.published, localPath)
	return f.err
}

func (f *fakeArtifacts) FetchStore(context.Context, string) error { return nil }

type fakeLedger struct {
	reports []*BuildReport
	err     error
}

func (f *fakeLedger) RecordBuild(_ context.Context, report *BuildReport) error {
	f.reports = append(f.reports, report)
	return f.err
}

type fakeEvents struct {
	events []*StoreBuiltEvent
}

func (f *fakeEvents) PublishStoreBuilt(_ context.Context, event *StoreBuiltEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeDownloader struct {
	rows []domain.CatalogRow
	err  error
}

func (f *fakeDownloader) DownloadMissing(_ context.Context, rows []domain.CatalogRow) (*DownloadReport, error) {
	f.rows = rows
	if f.err != nil {
		return nil, f.err
	}
	return &DownloadReport{Downloaded: len(rows)}, nil
}

type fakeCache struct {
	mu     sync.Mutex
	items  map[string][]domain.MatchResult
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: map[string][]domain.MatchResult{}}
}

func (f *fakeCache) Get(_ context.Context, key string) ([]domain.MatchResult, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.items[key]
	return res, ok, nil
}

func (f *fakeCache) Set(_ context.Context, key string, results []domain.MatchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[key] = results
	return nil
}

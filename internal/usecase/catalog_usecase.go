package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// CatalogUseCase собирает хранилище эмбеддингов из CSV каталога и изображений.
type CatalogUseCase struct {
	catalogRepo CatalogRepository
	storeRepo   StoreRepository
	extractor   FeatureExtractor
	resolver    ImageResolver
	downloader  ImageDownloader
	artifacts   ArtifactRepository
	ledger      LedgerRepository
	events      EventProducer
	workers     int
	logger      logger.Logger
}

// NewCatalogUC создает сборщик. downloader, artifacts, ledger и events могут быть nil.
func NewCatalogUC(
	catalogRepo CatalogRepository,
	storeRepo StoreRepository,
	extractor FeatureExtractor,
	resolver ImageResolver,
	downloader ImageDownloader,
	artifacts ArtifactRepository,
	ledger LedgerRepository,
	events EventProducer,
	workers int,
	logger logger.Logger,
) *CatalogUseCase {
	if artifacts == nil {
		artifacts = NoopArtifacts{}
	}
	if ledger == nil {
		ledger = NoopLedger{}
	}
	if events == nil {
		events = NoopEventProducer{}
	}
	if workers < 1 {
		workers = 1
	}

	return &CatalogUseCase{
		catalogRepo: catalogRepo,
		storeRepo:   storeRepo,
		extractor:   extractor,
		resolver:    resolver,
		downloader:  downloader,
		artifacts:   artifacts,
		ledger:      ledger,
		events:      events,
		workers:     workers,
		logger:      logger,
	}
}

// rowOutcome хранит эмбеддинг строки или причину ее пропуска.
type rowOutcome struct {
	embedding []float32
	warning   *BuildWarning
}

// Build считает эмбеддинги всех строк каталога. Строки без изображения или с нечитаемым
// изображением пропускаются с предупреждением; порядок записей совпадает с порядком каталога.
// Ошибка модели или отмена контекста прерывает сборку целиком.
func (c *CatalogUseCase) Build(ctx context.Context, rows []domain.CatalogRow) (*domain.EmbeddingStore, *BuildReport, error) {
	const op = "CatalogUseCase.Build"

	report := &BuildReport{
		BuildID:   uuid.NewString(),
		Model:     c.extractor.ModelName(),
		Dim:       c.extractor.Dim(),
		Total:     len(rows),
		StartedAt: time.Now().UTC(),
	}

	outcomes := make([]rowOutcome, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, row := range rows {
		g.Go(func() error {
			out, err := c.embedRow(gctx, row)
			if err != nil {
				return e.Wrap(fmt.Sprintf("row %q", row.ID), err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, e.Wrap(op, err)
	}

	store := domain.NewEmbeddingStore(report.Dim, report.Model, report.BuildID, report.StartedAt)
	for i, out := range outcomes {
		if out.warning != nil {
			report.Warnings = append(report.Warnings, *out.warning)
			continue
		}
		if err := store.Append(domain.NewProductRecord(rows[i], out.embedding)); err != nil {
			return nil, nil, e.Wrap(op, err)
		}
	}

	report.Embedded = store.Count()
	report.FinishedAt = time.Now().UTC()

	c.logger.Infof("catalog build %s finished: rows=%d embedded=%d skipped=%d in %s",
		report.BuildID, report.Total, report.Embedded, report.Skipped(), report.FinishedAt.Sub(report.StartedAt))
	return store, report, nil
}

func (c *CatalogUseCase) embedRow(ctx context.Context, row domain.CatalogRow) (rowOutcome, error) {
	img, err := c.resolver.Resolve(ctx, row)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return rowOutcome{}, ctxErr
		}
		return c.skip(row, err), nil
	}

	vec, err := c.extractor.Embed(ctx, img)
	if err != nil {
		if errors.Is(err, e.ErrImageDecode) {
			return c.skip(row, err), nil
		}
		return rowOutcome{}, err
	}

	return rowOutcome{embedding: vec}, nil
}

func (c *CatalogUseCase) skip(row domain.CatalogRow, err error) rowOutcome {
	c.logger.Warnf("skipping catalog row %q: %v", row.ID, err)
	return rowOutcome{warning: &BuildWarning{RowID: row.ID, Reason: err.Error()}}
}

// BuildAndPersist выполняет полную сборку: блокировка, чтение CSV, (скачивание), эмбеддинги,
// атомарное сохранение, публикация артефакта, журнал и событие.
func (c *CatalogUseCase) BuildAndPersist(ctx context.Context, req *BuildReq) (*BuildReport, error) {
	const op = "CatalogUseCase.BuildAndPersist"

	unlock, err := c.storeRepo.Lock(req.StorePath)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	defer func() {
		if err := unlock(); err != nil {
			c.logger.Errorf(err, "failed to release build lock for %s", req.StorePath)
		}
	}()

	rows, err := c.catalogRepo.ReadFile(ctx, req.CatalogPath)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if req.Download {
		if _, err := c.download(ctx, rows); err != nil {
			return nil, e.Wrap(op, err)
		}
	}

	store, report, err := c.Build(ctx, rows)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if err := c.storeRepo.Save(ctx, req.StorePath, store); err != nil {
		return nil, e.Wrap(op, err)
	}
	report.StorePath = req.StorePath

	if req.Publish {
		if err := c.artifacts.PublishStore(ctx, req.StorePath); err != nil {
			return report, e.Wrap(op, err)
		}
	}

	if err := c.ledger.RecordBuild(ctx, report); err != nil {
		c.logger.Warnf("failed to record build %s: %v", report.BuildID, err)
	}

	if err := c.events.PublishStoreBuilt(ctx, NewStoreBuiltEvent(report)); err != nil {
		c.logger.Warnf("failed to publish store built event %s: %v", report.BuildID, err)
	}

	return report, nil
}

// DownloadImages скачивает изображения каталога, которых еще нет локально.
func (c *CatalogUseCase) DownloadImages(ctx context.Context, req *DownloadImagesReq) (*DownloadReport, error) {
	const op = "CatalogUseCase.DownloadImages"

	rows, err := c.catalogRepo.ReadFile(ctx, req.CatalogPath)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	report, err := c.download(ctx, rows)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	return report, nil
}

func (c *CatalogUseCase) download(ctx context.Context, rows []domain.CatalogRow) (*DownloadReport, error) {
	if c.downloader == nil {
		return nil, errors.New("image downloader is not configured")
	}

	report, err := c.downloader.DownloadMissing(ctx, rows)
	if err != nil {
		return nil, err
	}

	c.logger.Infof("images: downloaded=%d existing=%d local=%d mirrored=%d failed=%d",
		report.Downloaded, report.Existing, report.Local, report.Mirrored, len(report.Warnings))
	return report, nil
}

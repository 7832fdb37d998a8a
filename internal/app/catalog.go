package app

import (
	"context"

	config "github.com/DRSN-tech/product-matcher/internal/cfg"
	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/internal/infrastructure/downloader"
	minioInfra "github.com/DRSN-tech/product-matcher/internal/infrastructure/minio"
	"github.com/DRSN-tech/product-matcher/internal/infrastructure/resolver"
	"github.com/DRSN-tech/product-matcher/internal/repository/csvcatalog"
	"github.com/DRSN-tech/product-matcher/internal/repository/filestore"
	s3Repo "github.com/DRSN-tech/product-matcher/internal/repository/minio"
	"github.com/DRSN-tech/product-matcher/internal/usecase"
	"github.com/DRSN-tech/product-matcher/pkg/closer"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/jimlawless/whereami"
)

// CatalogOptions определяет, какие зависимости нужны команде CLI.
type CatalogOptions struct {
	Extractor bool // модель нужна только для сборки
	Backends  bool // MinIO, Postgres и Kafka
}

// Catalog содержит зависимости офлайн-подготовки каталога.
type Catalog struct {
	UC     *usecase.CatalogUseCase
	Stores *filestore.StoreRepo
	closer *closer.Closer
	logger logger.Logger
}

// NewCatalog собирает CatalogUseCase из конфигурации.
func NewCatalog(ctx context.Context, cfg *config.Config, opts CatalogOptions, logger logger.Logger) (_ *Catalog, err error) {
	cl := closer.NewCloser(forcedTimeout)
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if closeErr := cl.Close(closeCtx); closeErr != nil {
				logger.Errorf(closeErr, "failed to release resources after init error")
			}
		}
	}()

	var x usecase.FeatureExtractor
	if opts.Extractor {
		ext, err := newExtractor(ctx, cfg, cl, logger)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		x = ext
	}

	var (
		artifacts usecase.ArtifactRepository
		mirror    usecase.ImageMirror
		ledger    usecase.LedgerRepository
		events    usecase.EventProducer
	)
	resolvers := []usecase.ImageResolver{resolver.NewLocalResolver(cfg.Catalog.ImagesDir, cfg.Catalog.ImageExtensions)}

	if opts.Backends {
		minioClient, err := newMinIO(ctx, cfg.Minio, logger)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		if minioClient != nil {
			imageRepo := s3Repo.NewImageRepo(minioClient, cfg.Minio)
			artifacts = s3Repo.NewArtifactRepo(minioClient, cfg.Minio, logger)
			resolvers = append(resolvers, resolver.NewBucketResolver(imageRepo, cfg.Minio.ImagesPrefix, cfg.Catalog.ImageExtensions))
			if cfg.Downloader.MirrorToS3 {
				mirror = minioInfra.NewMinioInfrastructure(imageRepo, cfg.Minio, logger)
			}
		}

		if ledger, err = newLedger(ctx, cfg.Db, cl, logger); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		if events, err = newEventProducer(cfg.Kafka, cl, logger); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
	}

	stores := filestore.NewStoreRepo(logger)
	uc := usecase.NewCatalogUC(
		csvcatalog.NewCatalogRepo(logger),
		stores,
		x,
		resolver.NewChainResolver(resolvers...),
		downloader.NewDownloader(cfg.Downloader, cfg.Catalog, mirror, logger),
		artifacts,
		ledger,
		events,
		cfg.Catalog.BuildWorkers,
		logger,
	)

	return &Catalog{
		UC:     uc,
		Stores: stores,
		closer: cl,
		logger: logger,
	}, nil
}

// Inspect загружает хранилище для просмотра.
func (c *Catalog) Inspect(ctx context.Context, path string) (*domain.EmbeddingStore, error) {
	store, err := c.Stores.Load(ctx, path)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	return store, nil
}

func (c *Catalog) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.closer.Close(ctx); err != nil {
		c.logger.Errorf(err, "failed to close catalog dependencies")
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	config "github.com/DRSN-tech/product-matcher/internal/cfg"
	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/internal/infrastructure/extractor"
	"github.com/DRSN-tech/product-matcher/internal/infrastructure/kafka"
	ml_service "github.com/DRSN-tech/product-matcher/internal/infrastructure/ml-service"
	"github.com/DRSN-tech/product-matcher/internal/repository/filestore"
	"github.com/DRSN-tech/product-matcher/internal/repository/memcache"
	"github.com/DRSN-tech/product-matcher/internal/repository/pgdb"
	pgdbConv "github.com/DRSN-tech/product-matcher/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/product-matcher/internal/repository/redis"
	redisConv "github.com/DRSN-tech/product-matcher/internal/repository/redis/converter"
	"github.com/DRSN-tech/product-matcher/internal/usecase"
	"github.com/DRSN-tech/product-matcher/pkg/clients"
	"github.com/DRSN-tech/product-matcher/pkg/closer"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/DRSN-tech/product-matcher/pkg/postgres"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	initTimeout        = 10 * time.Second
	topicEnsureTimeout = 10 * time.Second
)

// newExtractor поднимает модель выбранного бэкенда и оборачивает ее пулом воркеров.
func newExtractor(ctx context.Context, cfg *config.Config, cl *closer.Closer, logger logger.Logger) (*extractor.Extractor, error) {
	var model extractor.Model

	switch cfg.Extractor.Backend {
	case config.ModelBackendRemote:
		conn, err := grpc.NewClient(
			cfg.Ml.Addr,
			grpc.WithTransportCredentials(insecure.NewCredentials()), // ML-сервис во внутренней сети, без TLS
		)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), e.Join(e.ErrModelUnavailable, err))
		}
		cl.Add("ml grpc conn", func(context.Context) error { return conn.Close() })

		initCtx, cancel := context.WithTimeout(ctx, initTimeout)
		defer cancel()

		ml, err := ml_service.NewMLService(initCtx, conn, cfg.Ml.MaxRetries, cfg.Ml.Timeout, cfg.Extractor.InputSize, logger)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		model = ml
	default:
		pm, err := extractor.NewPoolingModel(cfg.Extractor.InputSize, cfg.Extractor.PoolGrid, cfg.Extractor.WeightsPath)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		model = pm
		logger.Warnf("MODEL_BACKEND=local: using %s, a colour pooling baseline; set MODEL_BACKEND=remote for CNN accuracy", pm.Name())
	}

	x, err := extractor.NewExtractor(model, cfg.Extractor.MaxConcurrent, logger)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	return x, nil
}

// newMinIO возвращает nil, если MinIO не настроен.
func newMinIO(ctx context.Context, cfg *config.MinIOCfg, logger logger.Logger) (*minio.Client, error) {
	if !cfg.Enabled() {
		logger.Infof("minio is not configured, object storage disabled")
		return nil, nil
	}

	client, err := clients.NewMinIOClient(cfg)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minioCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	if err := clients.EnsureBucket(minioCtx, client, cfg.BucketName); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	logger.Infof("minio endpoint: %s, bucket: %s", cfg.MinioEndpoint, cfg.BucketName)
	return client, nil
}

// newResultCache выбирает кэш результатов по CACHE_TYPE. nil означает отсутствие кэша.
func newResultCache(ctx context.Context, cfg *config.Config, cl *closer.Closer, logger logger.Logger) (usecase.ResultCache, error) {
	switch cfg.Cache.Type {
	case config.CacheMemory:
		logger.Infof("identify cache: memory lru, size=%d ttl=%s", cfg.Cache.Size, cfg.Cache.TTL)
		return memcache.NewCacheRepo(cfg.Cache), nil
	case config.CacheRedis:
		redisClient := clients.NewRedisClient(cfg.Redis)
		cl.Add("redis", func(context.Context) error { return redisClient.Close() })

		redisCtx, cancel := context.WithTimeout(ctx, initTimeout)
		defer cancel()
		if err := redisClient.Ping(redisCtx); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		logger.Infof("identify cache: redis %s, ttl=%s", cfg.Redis.Addr, cfg.Cache.TTL)
		return redis.NewCacheRepo(redisClient, redisConv.NewMatchResultConverter(), cfg.Cache, logger), nil
	default:
		return nil, nil
	}
}

// newLedger подключает журнал сборок. Без POSTGRES_DB журнал отключен.
func newLedger(ctx context.Context, cfg *config.PGDBCfg, cl *closer.Closer, logger logger.Logger) (usecase.LedgerRepository, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	db, err := initPGDB(ctx, logger, cfg)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.AddFunc("postgres", db.Close)

	return pgdb.NewLedgerRepo(db.Pool, pgdbConv.NewCatalogBuildConverter(), logger), nil
}

func initPGDB(ctx context.Context, logger logger.Logger, cfg *config.PGDBCfg) (*postgres.PgDatabase, error) {
	db, err := postgres.Connect(ctx, cfg)
	if err != nil {
		logger.Errorf(err, "failed to connect to database")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.RunMigrations(logger); err != nil {
		logger.Errorf(err, "failed to run migrations")
		db.Close()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return db, nil
}

// newEventProducer возвращает nil, если не заданы брокеры Kafka.
func newEventProducer(cfg *config.KafkaCfg, cl *closer.Closer, logger logger.Logger) (usecase.EventProducer, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	producer, err := kafka.NewProducer(logger, cfg)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.Add("kafka producer", func(context.Context) error { return producer.Close() })

	if err := producer.EnsureTopic(topicEnsureTimeout); err != nil {
		logger.Warnf("failed to ensure kafka topic %s: %v", cfg.Topic, err)
	}

	return producer, nil
}

// loadStore читает хранилище с диска. Если файла нет и задан artifacts, сначала скачивает его.
func loadStore(ctx context.Context, path string, repo *filestore.StoreRepo, artifacts usecase.ArtifactRepository, logger logger.Logger) (*domain.EmbeddingStore, error) {
	const op = "app.loadStore"

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && artifacts != nil {
		logger.Infof("store %s not found locally, fetching artifact", path)
		if err := artifacts.FetchStore(ctx, path); err != nil {
			return nil, e.Wrap(op, err)
		}
	}

	store, err := repo.Load(ctx, path)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	return store, nil
}

// checkDimension сверяет размерность хранилища с моделью.
func checkDimension(store *domain.EmbeddingStore, x usecase.FeatureExtractor, logger logger.Logger) error {
	if store.Dim != x.Dim() {
		return e.Wrap(
			fmt.Sprintf("store %s has dim %d, model %s produces %d", store.BuildID, store.Dim, x.ModelName(), x.Dim()),
			e.ErrDimensionMismatch,
		)
	}
	if store.Model != x.ModelName() {
		logger.Warnf("store was built with model %q, serving with %q", store.Model, x.ModelName())
	}
	return nil
}

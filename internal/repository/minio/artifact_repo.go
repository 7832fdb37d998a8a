package minio

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/DRSN-tech/product-matcher/internal/cfg"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/minio/minio-go/v7"
)

const storeContentType = "application/octet-stream"

// ArtifactRepo публикует файл хранилища эмбеддингов в бакет и скачивает его на сервер запросов.
type ArtifactRepo struct {
	mc     *minio.Client
	cfg    *cfg.MinIOCfg
	logger logger.Logger
}

func NewArtifactRepo(mc *minio.Client, cfg *cfg.MinIOCfg, logger logger.Logger) *ArtifactRepo {
	return &ArtifactRepo{
		mc:     mc,
		cfg:    cfg,
		logger: logger,
	}
}

func (a *ArtifactRepo) PublishStore(ctx context.Context, localPath string) error {
	const op = "ArtifactRepo.PublishStore"

	info, err := a.mc.FPutObject(ctx, a.cfg.BucketName, a.cfg.StoreObjectKey, localPath, minio.PutObjectOptions{
		ContentType: storeContentType,
	})
	if err != nil {
		return e.Wrap(op, err)
	}

	a.logger.Infof("store artifact published to s3://%s/%s (%d bytes)", a.cfg.BucketName, info.Key, info.Size)
	return nil
}

// FetchStore скачивает артефакт в localPath. Отсутствие объекта дает fs.ErrNotExist.
func (a *ArtifactRepo) FetchStore(ctx context.Context, localPath string) error {
	const op = "ArtifactRepo.FetchStore"

	err := a.mc.FGetObject(ctx, a.cfg.BucketName, a.cfg.StoreObjectKey, localPath, minio.GetObjectOptions{})
	if err != nil {
		switch minio.ToErrorResponse(err).Code {
		case "NoSuchKey", "NoSuchBucket":
			return e.Wrap(op, fmt.Errorf("%w: s3://%s/%s", fs.ErrNotExist, a.cfg.BucketName, a.cfg.StoreObjectKey))
		}
		return e.Wrap(op, err)
	}

	a.logger.Infof("store artifact fetched from s3://%s/%s", a.cfg.BucketName, a.cfg.StoreObjectKey)
	return nil
}

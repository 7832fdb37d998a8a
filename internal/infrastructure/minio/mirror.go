package minio

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/DRSN-tech/product-matcher/internal/cfg"
	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/internal/infrastructure/resolver"
	"github.com/DRSN-tech/product-matcher/internal/usecase"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
)

// MinioInfrastructure копирует локальные изображения каталога в бакет,
// чтобы сборка на другой машине могла найти их через resolver.BucketResolver.
type MinioInfrastructure struct {
	imageRepo         usecase.ImageRepository
	cfg               *cfg.MinIOCfg
	logger            logger.Logger
	uploadImagesLimit int
}

func NewMinioInfrastructure(imageRepo usecase.ImageRepository, cfg *cfg.MinIOCfg, logger logger.Logger) *MinioInfrastructure {
	limit := cfg.UploadImagesLimit
	if limit < 1 {
		limit = 1
	}

	return &MinioInfrastructure{
		imageRepo:         imageRepo,
		cfg:               cfg,
		logger:            logger,
		uploadImagesLimit: limit,
	}
}

type mirrorFailure struct {
	rowID string
	err   error
}

// MirrorImages загружает изображения параллельно с ограничением одновременных операций.
// Ошибка отдельного файла попадает в Failed и не прерывает остальные загрузки.
func (m *MinioInfrastructure) MirrorImages(ctx context.Context, req *usecase.MirrorImagesReq) (*usecase.MirrorImagesRes, error) {
	const op = "MinioInfrastructure.MirrorImages"

	keyCh := make(chan string, len(req.Images))
	errCh := make(chan mirrorFailure, len(req.Images))
	sem := make(chan struct{}, m.uploadImagesLimit)

	var uploadWg sync.WaitGroup
	for _, img := range req.Images {
		uploadWg.Add(1)
		go func() {
			defer uploadWg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errCh <- mirrorFailure{rowID: img.RowID, err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			key, err := m.upload(ctx, img)
			if err != nil {
				errCh <- mirrorFailure{rowID: img.RowID, err: err}
				return
			}
			keyCh <- key
		}()
	}

	uploadWg.Wait()
	close(keyCh)
	close(errCh)

	res := &usecase.MirrorImagesRes{Keys: make([]string, 0, len(req.Images))}
	for key := range keyCh {
		res.Keys = append(res.Keys, key)
	}
	for f := range errCh {
		m.logger.Warnf("%s: mirror of row %q failed: %v", op, f.rowID, f.err)
		res.Failed = append(res.Failed, usecase.BuildWarning{RowID: f.rowID, Reason: f.err.Error()})
	}

	if err := ctx.Err(); err != nil {
		return res, e.Wrap(op, err)
	}
	return res, nil
}

func (m *MinioInfrastructure) upload(ctx context.Context, img usecase.MirrorImage) (string, error) {
	data, err := os.ReadFile(img.Path)
	if err != nil {
		return "", err
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(img.Path)), ".")
	if ext == "" {
		return "", fmt.Errorf("file %s has no extension", img.Path)
	}

	key := resolver.ObjectKey(m.cfg.ImagesPrefix, img.RowID, ext)
	image := domain.NewImage(m.cfg.BucketName, key, data, http.DetectContentType(data))
	return m.imageRepo.Upload(ctx, image)
}

package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/DRSN-tech/product-matcher/internal/cfg"
	v1Grpc "github.com/DRSN-tech/product-matcher/internal/delivery/v1/grpc"
	v1Http "github.com/DRSN-tech/product-matcher/internal/delivery/v1/http"
	"github.com/DRSN-tech/product-matcher/internal/repository/filestore"
	s3Repo "github.com/DRSN-tech/product-matcher/internal/repository/minio"
	"github.com/DRSN-tech/product-matcher/internal/usecase"
	"github.com/DRSN-tech/product-matcher/pkg/closer"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
)

const (
	shutdownTimeout = 10 * time.Second
	forcedTimeout   = 3 * time.Second
)

// App собирает сервер запросов: хранилище загружено, HTTP и gRPC готовы к запуску.
type App struct {
	cfg     *config.Config
	logger  logger.Logger
	closer  *closer.Closer
	httpSrv *v1Http.Server
	grpcSrv *v1Grpc.GRPCServer
}

// NewApp поднимает зависимости сервера запросов. Ошибка модели, поврежденное хранилище
// или несовпадение размерности делают запуск невозможным.
func NewApp(cfg *config.Config, logger logger.Logger) (_ *App, err error) {
	ctx := context.Background()
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

	x, err := newExtractor(ctx, cfg, cl, logger)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minioClient, err := newMinIO(ctx, cfg.Minio, logger)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	var artifacts usecase.ArtifactRepository
	if minioClient != nil {
		artifacts = s3Repo.NewArtifactRepo(minioClient, cfg.Minio, logger)
	}

	store, err := loadStore(ctx, cfg.Store.Path, filestore.NewStoreRepo(logger), artifacts, logger)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	if err := checkDimension(store, x, logger); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	logger.Infof("embedding store %s loaded: %d products, dim=%d, model=%s",
		store.BuildID, store.Count(), store.Dim, store.Model)

	cache, err := newResultCache(ctx, cfg, cl, logger)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	queryUC := usecase.NewQueryUC(x, usecase.NewMatcher(store), cache, cfg.Query.Timeout, logger)

	grpcSrv := v1Grpc.NewGRPCServer(cfg.Grpc, cfg.Http.MaxUploadBytes, logger)
	grpcSrv.RegisterServices(queryUC, cfg.Query)

	r := chi.NewRouter()
	v1Http.NewRouter(r, logger).Init(queryUC, cfg.Http, cfg.Query)
	httpSrv := v1Http.NewServer(r, cfg.Http)

	// Серверы регистрируются последними и останавливаются первыми.
	cl.Add("gRPC server", grpcSrv.Stop)
	cl.Add("HTTP server", httpSrv.Stop)

	return &App{
		cfg:     cfg,
		logger:  logger,
		closer:  cl,
		httpSrv: httpSrv,
		grpcSrv: grpcSrv,
	}, nil
}

// Run запускает серверы и блокируется до сигнала остановки или падения одного из них.
func (a *App) Run() error {
	grpcErrCh := make(chan error, 1)
	go func() {
		a.logger.Infof("gRPC server starting on %s:%s", a.cfg.Grpc.NetworkMode, a.cfg.Grpc.Port)
		if err := a.grpcSrv.Start(); err != nil {
			grpcErrCh <- err
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("HTTP server started on port %s", a.cfg.Http.Port)
		if err := a.httpSrv.Run(); err != nil {
			errCh <- err
		}
	}()

	// === Ожидание сигнала или ошибки ===
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	var appErr error
	select {
	case appErr = <-errCh:
		a.logger.Errorf(appErr, "HTTP server fatal error")
	case appErr = <-grpcErrCh:
		a.logger.Errorf(appErr, "gRPC server fatal error")
	case <-shutdown:
		a.logger.Infof("Received shutdown signal, stopping gracefully...")
	}

	// === Graceful shutdown ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.closer.Close(shutdownCtx); err != nil {
		a.logger.Errorf(err, "shutdown finished with errors")
	}

	a.logger.Infof("Application shutdown complete")
	return appErr
}

package http

import (
	_ "github.com/DRSN-tech/product-matcher/docs" // Импорт сгенерированных файлов
	"github.com/DRSN-tech/product-matcher/internal/cfg"
	"github.com/DRSN-tech/product-matcher/internal/usecase"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

type Router struct {
	router *chi.Mux
	logger logger.Logger
}

func NewRouter(router *chi.Mux, logger logger.Logger) *Router {
	return &Router{router: router, logger: logger}
}

func (r *Router) Init(queryUC usecase.QueryUC, httpCfg *cfg.HTTPConfig, queryCfg *cfg.QueryCfg) {
	r.router.Use(
		middleware.RealIP,
		requestID,
		accessLog(r.logger),
		middleware.Recoverer,
	)

	r.router.Get("/healthz", health)
	r.router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"), // ссылка на JSON
	))

	r.router.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(rateLimit(httpCfg.RateLimit, httpCfg.RateBurst, r.logger))

		mHandler := NewMatcherHandler(queryUC, httpCfg, queryCfg, r.logger)
		registerMatcherRoutes(v1, mHandler)
	})
}

func registerMatcherRoutes(router chi.Router, mHandler *MatcherHandler) {
	router.Post("/identify", mHandler.identify)
	router.Get("/store", mHandler.storeInfo)
}

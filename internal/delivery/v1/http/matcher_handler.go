package http

import (
	"errors"
	"net/http"

	"github.com/DRSN-tech/product-matcher/internal/cfg"
	"github.com/DRSN-tech/product-matcher/internal/usecase"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
)

type MatcherHandler struct {
	queryUC  usecase.QueryUC
	httpCfg  *cfg.HTTPConfig
	queryCfg *cfg.QueryCfg
	logger   logger.Logger
}

func NewMatcherHandler(queryUC usecase.QueryUC, httpCfg *cfg.HTTPConfig, queryCfg *cfg.QueryCfg, logger logger.Logger) *MatcherHandler {
	return &MatcherHandler{
		queryUC:  queryUC,
		httpCfg:  httpCfg,
		queryCfg: queryCfg,
		logger:   logger,
	}
}

// identify
//
//	@Summary		Идентификация товара по фото
//	@Description	Возвращает ближайшие товары каталога. Пустой список означает, что совпадений нет.
//	@Tags			matcher
//	@Accept			multipart/form-data
//	@Accept			image/jpeg
//	@Accept			image/png
//	@Produce		json
//	@Param			image	formData	file				false	"Фото товара"
//	@Param			top_k	query		int					false	"Количество результатов"
//	@Success		200		{object}	IdentifyResponse
//	@Failure		400		{object}	ErrorResponse	"Некорректный запрос"
//	@Failure		413		{object}	ErrorResponse	"Слишком большой файл"
//	@Failure		422		{object}	ErrorResponse	"Изображение не читается"
//	@Failure		504		{object}	ErrorResponse	"Таймаут запроса"
//	@Router			/identify [post]
func (h *MatcherHandler) identify(w http.ResponseWriter, r *http.Request) {
	topK, err := parseTopK(r.URL.Query(), h.queryCfg)
	if err != nil {
		h.logger.Warnf("%d %s: %v", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err)
		WriteError(w, err)
		return
	}

	data, err := readImage(w, r, h.httpCfg.MaxUploadBytes)
	if err != nil {
		h.logger.Warnf("identify request rejected: %v", err)
		WriteError(w, err)
		return
	}

	res, err := h.queryUC.Identify(r.Context(), usecase.NewIdentifyReq(data, topK))
	if err != nil {
		if errors.Is(err, e.ErrImageDecode) {
			h.logger.Warnf("identify: %v", err)
		} else {
			h.logger.Errorf(err, "identify failed")
		}
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, NewIdentifyResponse(res))
}

// storeInfo
//
//	@Summary	Описание загруженного хранилища эмбеддингов
//	@Tags		matcher
//	@Produce	json
//	@Success	200	{object}	StoreInfoResponse
//	@Router		/store [get]
func (h *MatcherHandler) storeInfo(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, http.StatusOK, NewStoreInfoResponse(h.queryUC.StoreInfo()))
}

func health(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

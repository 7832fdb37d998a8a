package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/DRSN-tech/product-matcher/internal/cfg"
	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/jimlawless/whereami"
)

const (
	imageField = "image"
	topKParam  = "top_k"

	multipartMaxMemory = 32 << 20
	multipartOverhead  = 1 << 20
)

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewErrorResponse(code int, message string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
	}
}

// ToHTTPResponse сопоставляет ошибку с кодом ответа и сообщением для пользователя.
func ToHTTPResponse(err error) (int, string) {
	switch {
	case errors.Is(err, e.ErrImageDecode):
		return http.StatusUnprocessableEntity, "could not read your image"
	case errors.Is(err, e.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, e.ErrFileTooLarge.Error()
	case errors.Is(err, e.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, e.ErrUnsupportedMediaType.Error()
	case errors.Is(err, e.ErrExpectedMultipart):
		return http.StatusBadRequest, e.ErrExpectedMultipart.Error()
	case errors.Is(err, e.ErrNoImages):
		return http.StatusBadRequest, e.ErrNoImages.Error()
	case errors.Is(err, e.ErrInvalidTopK):
		return http.StatusBadRequest, e.ErrInvalidTopK.Error()
	case errors.Is(err, e.ErrStatusBadRequest):
		return http.StatusBadRequest, e.ErrStatusBadRequest.Error()
	case errors.Is(err, e.ErrTooManyRequests):
		return http.StatusTooManyRequests, e.ErrTooManyRequests.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "query timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "request cancelled"
	default:
		return http.StatusInternalServerError, e.ErrInternalServerError.Error()
	}
}

func WriteError(w http.ResponseWriter, err error) {
	code, msg := ToHTTPResponse(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(NewErrorResponse(code, msg))
}

func WriteSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// parseTopK читает top_k. Без параметра берется значение по умолчанию, слишком большое значение обрезается до максимума.
func parseTopK(values url.Values, cfg *cfg.QueryCfg) (int, error) {
	raw := strings.TrimSpace(values.Get(topKParam))
	if raw == "" {
		return cfg.DefaultTopK, nil
	}

	k, err := strconv.Atoi(raw)
	if err != nil || k < 0 {
		return 0, e.Wrap(raw, e.ErrInvalidTopK)
	}

	return min(k, cfg.MaxTopK), nil
}

// readImage принимает multipart с полем image или тело image/* (application/octet-stream).
func readImage(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrExpectedMultipart)
	}

	switch {
	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMaxMemory); err != nil {
			return nil, bodyError(err)
		}
		files := r.MultipartForm.File[imageField]
		if len(files) == 0 {
			return nil, e.Wrap(imageField, e.ErrNoImages)
		}
		return readFile(files[0], maxBytes)

	case strings.HasPrefix(mediaType, "image/"), mediaType == "application/octet-stream":
		return readLimited(r.Body, maxBytes)

	default:
		return nil, e.Wrap(mediaType, e.ErrExpectedMultipart)
	}
}

func readFile(fh *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	if fh.Size > maxBytes {
		return nil, e.Wrap(fh.Filename, e.ErrFileTooLarge)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrInternalServerError)
	}
	defer src.Close()

	return readLimited(src, maxBytes)
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, bodyError(err)
	}
	if int64(len(data)) > maxBytes {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrFileTooLarge)
	}
	if len(data) == 0 {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrNoImages)
	}

	return data, nil
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return e.Join(e.ErrFileTooLarge, err)
	}
	return e.Join(e.ErrStatusBadRequest, err)
}

package e

import "fmt"

var (
	// Внутренние ошибки с транзакциями
	ErrTransactionNotFound = fmt.Errorf("transaction not found")

	// Ошибки конфигурации
	ErrIncorrectEnvVariable = fmt.Errorf("incorrect environment variable")
	ErrUnsupportedBackend   = fmt.Errorf("unsupported backend")

	// Ошибки изображений и модели
	ErrImageDecode      = fmt.Errorf("could not decode image")
	ErrImageNotFound    = fmt.Errorf("image not found")
	ErrModelUnavailable = fmt.Errorf("model unavailable")

	// Ошибки хранилища эмбеддингов
	ErrStoreCorrupt      = fmt.Errorf("embedding store is corrupt")
	ErrDimensionMismatch = fmt.Errorf("embedding dimension mismatch")
	ErrBuildInProgress   = fmt.Errorf("catalog build already in progress")

	// Ошибки каталога
	ErrMissingColumn = fmt.Errorf("required catalog column is missing")

	// 400 Bad Request
	ErrStatusBadRequest     = fmt.Errorf("bad request")
	ErrExpectedMultipart    = fmt.Errorf("expected multipart/form-data or image body")
	ErrNoImages             = fmt.Errorf("no image provided")
	ErrInvalidTopK          = fmt.Errorf("top_k must be a non-negative integer")
	ErrUnsupportedMediaType = fmt.Errorf("unsupported media type")

	// 413 Request Entity Too Large
	ErrFileTooLarge = fmt.Errorf("file too large")

	// 429 Too Many Requests
	ErrTooManyRequests = fmt.Errorf("too many requests")

	// 500 Internal Server Error
	ErrInternalServerError = fmt.Errorf("internal server error")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}

// Join прикрепляет к доменной ошибке исходную причину, сохраняя проверку через errors.Is для обеих.
func Join(kind error, cause error) error {
	return fmt.Errorf("%w: %w", kind, cause)
}

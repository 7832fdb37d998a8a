// Package imagecodec декодирует изображения каталога и запросов в image.Image.
package imagecodec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"

	// Форматы, которые принимает сервис
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/pkg/e"
)

// MaxPixels ограничивает размер декодируемого изображения (защита от «бомб» распаковки).
const MaxPixels = 64 << 20

// Decode читает источник и декодирует изображение.
// Для отсутствующего файла возвращает e.ErrImageNotFound, для нечитаемых данных e.ErrImageDecode.
func Decode(src domain.ImageSource) (image.Image, error) {
	const op = "imagecodec.Decode"

	switch s := src.(type) {
	case domain.FilePath:
		data, err := os.ReadFile(string(s))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, e.Wrap(op, e.Join(e.ErrImageNotFound, err))
			}
			return nil, e.Wrap(op, err)
		}
		img, err := DecodeBytes(data)
		if err != nil {
			return nil, e.Wrap(fmt.Sprintf("%s %s", op, s), err)
		}
		return img, nil
	case domain.RawBytes:
		img, err := DecodeBytes(s)
		if err != nil {
			return nil, e.Wrap(op, err)
		}
		return img, nil
	case nil:
		return nil, e.Wrap(op, e.ErrNoImages)
	default:
		return nil, e.Wrap(op, fmt.Errorf("unsupported image source %T", src))
	}
}

// DecodeBytes декодирует закодированное изображение любого зарегистрированного формата.
func DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, e.Join(e.ErrImageDecode, errors.New("empty image"))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, e.Join(e.ErrImageDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, e.Join(e.ErrImageDecode, fmt.Errorf("%s image has empty bounds %dx%d", format, cfg.Width, cfg.Height))
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, e.Join(e.ErrImageDecode, fmt.Errorf("%s image %dx%d is too large", format, cfg.Width, cfg.Height))
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, e.Join(e.ErrImageDecode, err)
	}

	return img, nil
}

// ExtensionFromMIME возвращает расширение файла по MIME-типу изображения.
func ExtensionFromMIME(mime string) (string, error) {
	switch mime {
	case "image/jpeg", "image/jpg":
		return "jpg", nil
	case "image/png":
		return "png", nil
	case "image/gif":
		return "gif", nil
	case "image/webp":
		return "webp", nil
	case "image/bmp":
		return "bmp", nil
	default:
		return "bin", e.ErrUnsupportedMediaType
	}
}

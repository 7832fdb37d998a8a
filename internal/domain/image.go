package domain

import "fmt"

// ImageSource задает источник изображения: путь к файлу или сырые байты.
// Декодирование выполняется до передачи в экстрактор признаков.
type ImageSource interface {
	fmt.Stringer
	isImageSource()
}

// FilePath указывает на изображение в локальной файловой системе.
type FilePath string

func (FilePath) isImageSource()   {}
func (p FilePath) String() string { return string(p) }

// RawBytes содержит закодированное изображение (JPEG, PNG, ...), полученное от клиента.
type RawBytes []byte

func (RawBytes) isImageSource()   {}
func (b RawBytes) String() string { return fmt.Sprintf("<%d bytes>", len(b)) }

// Image описывает изображение, которое хранится в S3
type Image struct {
	Bucket      string
	ObjectKey   string
	Bytes       []byte
	ContentType string
}

func NewImage(bucket string, objectKey string, data []byte, contentType string) *Image {
	return &Image{
		Bucket:      bucket,
		ObjectKey:   objectKey,
		Bytes:       data,
		ContentType: contentType,
	}
}

func (i *Image) Size() int64 {
	return int64(len(i.Bytes))
}

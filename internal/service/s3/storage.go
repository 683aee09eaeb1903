package s3

import (
	"context"
	"io"
	"time"
)

// Object определяет интерфейс для объектов S3
type Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
}

// object реализует интерфейс Object
type object struct {
	io.ReadCloser
	contentLength int64
	contentType   string
}

func (o *object) ContentLength() int64 {
	return o.contentLength
}

func (o *object) ContentType() string {
	return o.contentType
}

// Storage определяет интерфейс для работы с S3-совместимым хранилищем
type Storage interface {
	UploadBytes(ctx context.Context, key, contentType string, data []byte) error
	GetObject(ctx context.Context, key string) (Object, error)
	DeleteObject(ctx context.Context, key string) error
	// PresignGet выдает временную ссылку на скачивание объекта
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

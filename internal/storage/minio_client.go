package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

const componentMinio = "Minio"

// FileStorage определяет интерфейс для записи в объектное хранилище.
type FileStorage interface {
	UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
}

// MinioClient реализует FileStorage для MinIO.
type MinioClient struct {
	client     *minio.Client
	bucketName string
}

// MinioConfig содержит параметры для подключения к MinIO.
type MinioConfig struct {
	Endpoint        string // Адрес MinIO (например, "localhost:9000")
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string // Бакет для архива событий
	Region          string
}

// NewMinioClient создает клиент MinIO и при необходимости создает бакет.
func NewMinioClient(ctx context.Context, cfg MinioConfig) (*MinioClient, error) {
	log.Info().Str("component", componentMinio).Str("endpoint", cfg.Endpoint).Msg("Инициализация клиента MinIO...")

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации клиента MinIO: %w", err)
	}

	exists, err := minioClient.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки существования бакета '%s': %w", cfg.BucketName, err)
	}
	if !exists {
		log.Info().Str("component", componentMinio).Str("bucket", cfg.BucketName).Msg("Бакет не найден, создаем")
		err = minioClient.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region})
		if err != nil {
			return nil, fmt.Errorf("ошибка создания бакета '%s': %w", cfg.BucketName, err)
		}
	}

	log.Info().Str("component", componentMinio).Str("bucket", cfg.BucketName).Msg("Клиент MinIO инициализирован")
	return &MinioClient{
		client:     minioClient,
		bucketName: cfg.BucketName,
	}, nil
}

// UploadFile загружает объект в бакет.
func (c *MinioClient) UploadFile(
	ctx context.Context,
	objectKey string,
	reader io.Reader,
	size int64,
	contentType string,
) error {
	uploadInfo, err := c.client.PutObject(ctx, c.bucketName, objectKey, reader, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("ошибка загрузки объекта в MinIO: %w", err)
	}

	log.Debug().Str("component", componentMinio).Str("key", objectKey).Int64("size", uploadInfo.Size).
		Str("etag", uploadInfo.ETag).Msg("Объект загружен")
	return nil
}

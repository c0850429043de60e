// Package storage uploads product images to an OSS bucket.
package storage

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/config"
)

type Uploader interface {
	UploadProductImage(filename string, r io.Reader) (string, error)
}

type OSSUploader struct {
	bucket   *oss.Bucket
	endpoint string
	name     string
}

func NewOSSUploader(cfg *config.OSSConfig) (*OSSUploader, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("create oss client: %w", err)
	}
	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("open oss bucket: %w", err)
	}
	return &OSSUploader{
		bucket:   bucket,
		endpoint: strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://"),
		name:     cfg.Bucket,
	}, nil
}

// UploadProductImage stores the image under a fresh key and returns its
// public URL.
func (u *OSSUploader) UploadProductImage(filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		return "", fmt.Errorf("unsupported image type %q", ext)
	}

	key := "products/" + uuid.New().String() + ext
	if err := u.bucket.PutObject(key, r); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return fmt.Sprintf("https://%s.%s/%s", u.name, u.endpoint, key), nil
}

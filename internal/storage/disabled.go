package storage

import (
	"errors"
	"io"
)

// DisabledUploader stands in when no OSS credentials are configured.
type DisabledUploader struct{}

func (DisabledUploader) UploadProductImage(string, io.Reader) (string, error) {
	return "", errors.New("image uploads are not configured")
}

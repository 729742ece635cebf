package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

const maxObjectBytes = 1 << 20

// ErrObjectNotFound is returned when the bucket or object does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectReader fetches small text objects from Cloud Storage.
type ObjectReader struct {
	client *gcs.Client
}

// NewObjectReader constructs an ObjectReader backed by the provided Cloud Storage client.
func NewObjectReader(client *gcs.Client) (*ObjectReader, error) {
	if client == nil {
		return nil, errors.New("storage reader: client is required")
	}
	return &ObjectReader{client: client}, nil
}

// ReadObject returns the object's bytes and last modification time. Objects over 1 MiB are rejected.
func (r *ObjectReader) ReadObject(ctx context.Context, bucket, object string) ([]byte, time.Time, error) {
	if r == nil || r.client == nil {
		return nil, time.Time{}, errors.New("storage reader: client is not initialised")
	}

	bucket = strings.TrimSpace(bucket)
	object = strings.TrimSpace(object)
	if bucket == "" || object == "" {
		return nil, time.Time{}, errors.New("storage reader: bucket and object must be provided")
	}

	reader, err := r.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
			return nil, time.Time{}, fmt.Errorf("%w: gs://%s/%s", ErrObjectNotFound, bucket, object)
		}
		return nil, time.Time{}, fmt.Errorf("storage reader: open gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()

	if reader.Attrs.Size > maxObjectBytes {
		return nil, time.Time{}, fmt.Errorf("storage reader: gs://%s/%s exceeds %d bytes", bucket, object, maxObjectBytes)
	}
	data, err := io.ReadAll(io.LimitReader(reader, maxObjectBytes+1))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("storage reader: read gs://%s/%s: %w", bucket, object, err)
	}
	if len(data) > maxObjectBytes {
		return nil, time.Time{}, fmt.Errorf("storage reader: gs://%s/%s exceeds %d bytes", bucket, object, maxObjectBytes)
	}
	return data, reader.Attrs.LastModified, nil
}

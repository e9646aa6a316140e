package holidays

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
)

// GetObjectFunc fetches an object body.
type GetObjectFunc func(ctx context.Context, bucket, key string) (io.ReadCloser, error)

// ObjectSource reads a YAML holiday document from an S3 compatible bucket.
type ObjectSource struct {
	Bucket string
	Key    string
	Get    GetObjectFunc
}

// NewObjectSource reads from MinIO.
func NewObjectSource(mc *minio.Client, bucket, key string) ObjectSource {
	return ObjectSource{
		Bucket: bucket,
		Key:    key,
		Get: func(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
			return mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
		},
	}
}

func (o ObjectSource) Load(ctx context.Context) ([]Holiday, error) {
	body, err := o.Get(ctx, o.Bucket, o.Key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return Decode(body)
}

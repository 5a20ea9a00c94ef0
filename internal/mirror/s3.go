package mirror

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures s3:// mirrors. Empty keys mean anonymous access. The
// endpoint is reached over TLS unless Insecure is set.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Insecure  bool
}

// DefaultS3Endpoint is used when no endpoint is configured.
const DefaultS3Endpoint = "s3.amazonaws.com"

type s3Mirror struct {
	name   string
	bucket string
	prefix string
	client *minio.Client
}

func newS3Mirror(mirrorName string, u *url.URL, cfg S3Config) (*s3Mirror, error) {
	bucket := u.Host
	if bucket == "" {
		return nil, fmt.Errorf("s3 mirror %q has no bucket", u.String())
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultS3Endpoint
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: !cfg.Insecure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &s3Mirror{
		name:   mirrorName,
		bucket: bucket,
		prefix: trimSlashes(u.Path),
		client: client,
	}, nil
}

func (m *s3Mirror) Name() string { return m.name }

func (m *s3Mirror) Location() string {
	if m.prefix == "" {
		return "s3://" + m.bucket
	}
	return "s3://" + m.bucket + "/" + m.prefix
}

func (m *s3Mirror) key(relPath string) string {
	rel := strings.TrimLeft(relPath, "/")
	if m.prefix == "" {
		return rel
	}
	return m.prefix + "/" + rel
}

func (m *s3Mirror) Fetch(ctx context.Context, relPath, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	key := m.key(relPath)
	if err := m.client.FGetObject(ctx, m.bucket, key, dst, minio.GetObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return fmt.Errorf("s3://%s/%s: not found", m.bucket, key)
		}
		return fmt.Errorf("s3://%s/%s: %w", m.bucket, key, err)
	}
	return nil
}

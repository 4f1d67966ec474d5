package s3

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	appchat "shopme/internal/app/chat"
)

// AvatarResolver maps avatar object keys in the storefront's media
// bucket to public URLs for push previews. Uploads happen elsewhere in
// the platform; this client only reads.
type AvatarResolver struct {
	bucket        string
	publicBaseURL string
	client        *minio.Client
	logger        *slog.Logger
}

// NewAvatarResolver configures a resolver against an S3-compatible
// endpoint.
func NewAvatarResolver(endpoint string, useSSL bool, accessKey, secretKey, bucket, publicBaseURL string, logger *slog.Logger) (*AvatarResolver, error) {
	cleanEndpoint := strings.TrimSpace(endpoint)
	if cleanEndpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	if bucket = strings.TrimSpace(bucket); bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(accessKey), strings.TrimSpace(secretKey), ""),
		Secure: useSSL,
	}
	minioClient, err := minio.New(parseEndpoint(cleanEndpoint), opts)
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}

	base := strings.TrimSpace(publicBaseURL)
	if base == "" {
		base = cleanEndpoint
	}
	return &AvatarResolver{
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(base, "/"),
		client:        minioClient,
		logger:        logger,
	}, nil
}

// AvatarURL returns the public URL for key after verifying the object
// exists. Resolution is best-effort: any failure just drops the preview
// image from the notification.
func (r *AvatarResolver) AvatarURL(ctx context.Context, key string) (string, bool) {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return "", false
	}
	if _, err := r.client.StatObject(ctx, r.bucket, key, minio.StatObjectOptions{}); err != nil {
		if r.logger != nil {
			r.logger.Debug("avatar lookup failed", "bucket", r.bucket, "key", key, "error", err)
		}
		return "", false
	}
	return r.objectURL(key), true
}

func (r *AvatarResolver) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", r.publicBaseURL, r.bucket, key)
}

func parseEndpoint(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

var _ appchat.AvatarResolver = (*AvatarResolver)(nil)

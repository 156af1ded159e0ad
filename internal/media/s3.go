package media

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the subset of the S3 client used by S3Store.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store stores media in an S3-compatible bucket.
type S3Store struct {
	client        s3API
	bucket        string
	prefix        string
	publicBaseURL string
}

// NewS3Store creates an S3Store. When publicBaseURL is empty, URLs point at
// the bucket's virtual-hosted endpoint in region.
func NewS3Store(client s3API, bucket, prefix, region, publicBaseURL string) *S3Store {
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix, publicBaseURL: publicBaseURL}
}

// NewS3StoreFromConfig builds a real S3 client, honoring a custom endpoint
// (e.g. MinIO) with path-style addressing.
func NewS3StoreFromConfig(ctx context.Context, cfg Config) (*S3Store, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.S3Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("media: load aws config: %w", err)
	}

	var s3OptFns []func(*s3.Options)
	if cfg.S3Endpoint != "" {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		})
	}

	return NewS3Store(s3.NewFromConfig(awsCfg, s3OptFns...), cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region, cfg.PublicBaseURL), nil
}

func (s *S3Store) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	publicID := s.prefix + newPublicID(contentType)

	input := &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(publicID),
		Body:         bytes.NewReader(data),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("media: s3 put: %w", err)
	}
	return publicID, nil
}

func (s *S3Store) OptimizedURL(publicID string) string {
	return joinURL(s.publicBaseURL, publicID)
}

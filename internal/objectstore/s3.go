package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/laksac24/VeriFy/internal/platform/config"
	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
)

// S3Store persists artifacts in an S3 bucket. Keys are generated server-side;
// callers only choose a folder prefix.
type S3Store struct {
	client    *s3.Client
	bucket    string
	region    string
	publicURL string
}

// NewS3 builds an S3-backed store. A non-empty endpoint switches to
// path-style addressing for S3-compatible services.
func NewS3(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:    client,
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		publicURL: cfg.PublicURL,
	}, nil
}

func (s *S3Store) Upload(ctx context.Context, folder string, data []byte, contentType string) (Ref, error) {
	key := path.Join(folder, uuid.NewString())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return Ref{}, dErrors.Wrap(err, dErrors.CodeExternal, "upload artifact")
	}
	return Ref{Key: key, URL: s.urlFor(key)}, nil
}

func (s *S3Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExternal, "fetch artifact")
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExternal, "read artifact body")
	}
	return data, nil
}

func (s *S3Store) urlFor(key string) string {
	if s.publicURL != "" {
		return s.publicURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

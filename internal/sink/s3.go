package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nixlim/pantrycost/internal/analytics"
)

// objectPutter is the part of *s3.Client the sink uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads each report to s3://bucket/prefix/<id>.json.
type S3Sink struct {
	client objectPutter
	bucket string
	prefix string
}

// NewS3Sink loads credentials from the default AWS chain.
func NewS3Sink(ctx context.Context, region, bucket, prefix string) (*S3Sink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return newS3Sink(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func newS3Sink(client objectPutter, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Sink) key(r *analytics.Report) string {
	if s.prefix == "" {
		return objectName(r)
	}
	return path.Join(s.prefix, objectName(r))
}

func (s *S3Sink) Write(ctx context.Context, r *analytics.Report) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	key := s.key(r)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("uploading report to s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *S3Sink) Close() error { return nil }

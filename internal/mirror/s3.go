package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// s3API is the subset of *s3.Client the mirror uses.
type s3API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var newS3Client = func(ctx context.Context, cfg S3Config) (s3API, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

type s3Backend struct {
	cfg S3Config
}

func NewS3Backend(cfg S3Config) (Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 mirror needs a bucket")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return &s3Backend{cfg: cfg}, nil
}

func (b *s3Backend) Name() string { return "s3" }

func (b *s3Backend) Mount(ctx context.Context) (Share, error) {
	client, err := newS3Client(ctx, b.cfg)
	if err != nil {
		return nil, fmt.Errorf("s3 config: %w", err)
	}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("head bucket %s: %w", b.cfg.Bucket, err)
	}
	return &s3Share{client: client, bucket: b.cfg.Bucket}, nil
}

type s3Share struct {
	client s3API
	bucket string
}

// MkdirAll is a no-op: object stores have no directories.
func (s *s3Share) MkdirAll(context.Context, string) error { return nil }

func (s *s3Share) Put(ctx context.Context, remotePath string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(strings.TrimPrefix(remotePath, "/")),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	return err
}

func (s *s3Share) Close() error { return nil }

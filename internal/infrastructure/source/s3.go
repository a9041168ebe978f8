package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// S3Config locates the export object. Any S3 compatible store works.
type S3Config struct {
	Bucket       string
	Key          string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3Source reads the export object from a bucket.
type S3Source struct {
	client *s3.Client
	bucket string
	key    string
	logger *zap.Logger
}

// S3Option configures an S3Source.
type S3Option func(*S3Source)

// WithLogger sets the logger of an S3Source.
func WithLogger(logger *zap.Logger) S3Option {
	return func(s *S3Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewS3Source validates cfg and builds the client. Without static
// credentials the default AWS credential chain is used.
func NewS3Source(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("source: s3 bucket is required")
	}
	if cfg.Key == "" {
		return nil, errors.New("source: s3 key is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		if cfg.SecretKey == "" {
			return nil, errors.New("source: s3 secret key is required with an access key")
		}
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	endpoint := cfg.Endpoint
	if endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("source: invalid s3 endpoint: %w", err)
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("source: failed to create AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	src := &S3Source{
		client: client,
		bucket: cfg.Bucket,
		key:    cfg.Key,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(src)
	}
	return src, nil
}

// Fetch streams the object body.
func (s *S3Source) Fetch(ctx context.Context) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("source: get s3://%s/%s: %w", s.bucket, s.key, err)
	}
	s.logger.Info("Opened export from S3",
		zap.String("bucket", s.bucket),
		zap.String("key", s.key),
		zap.Int64("size", aws.ToInt64(out.ContentLength)),
	)
	return out.Body, nil
}

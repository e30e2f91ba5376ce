package storage

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the configuration for S3 publishing.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
	KeyPrefix       string // Optional: prepended to every object key
}

// S3Publisher uploads finished sheets to an S3 bucket.
type S3Publisher struct {
	client *s3.Client
	bucket string
	region string
	prefix string
}

// NewS3Publisher creates an S3Publisher. Static credentials are used when
// provided, otherwise the default AWS credential chain applies.
func NewS3Publisher(cfg S3Config) (*S3Publisher, error) {
	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Publisher{
		client: s3.NewFromConfig(awsCfg, clientOpts...),
		bucket: cfg.Bucket,
		region: cfg.Region,
		prefix: cfg.KeyPrefix,
	}, nil
}

// Publish uploads the sheet and returns its public URL. The local sheet file
// is removed after a successful upload.
func (p *S3Publisher) Publish(ctx context.Context, sheetPath, videoPath string) (string, error) {
	f, err := os.Open(sheetPath) // #nosec G304 - path is produced by this application
	if err != nil {
		return "", fmt.Errorf("open sheet: %w", err)
	}
	defer func() { _ = f.Close() }()

	key := p.objectKey(videoPath)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return "", fmt.Errorf("upload to S3: %w", err)
	}

	_ = os.Remove(sheetPath)

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.bucket, p.region, key)
	return url, nil
}

func (p *S3Publisher) objectKey(videoPath string) string {
	return path.Join(p.prefix, sheetName(videoPath))
}

var _ Publisher = (*S3Publisher)(nil)

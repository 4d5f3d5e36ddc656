package dataset

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore is the bucket the dataset is published in
type ObjectStore interface {
	// ListKeys returns every object key in bucket
	ListKeys(ctx context.Context, bucket string) ([]string, error)
	// Download writes the object to w and returns the number of bytes written
	Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)
}

// S3Store reads objects from Amazon S3
type S3Store struct {
	client     *s3.Client
	downloader *manager.Downloader
}

// NewS3Store builds a store from the default AWS credential chain
// (AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY, shared config, instance role).
// An empty region defers to AWS_REGION or the shared config.
func NewS3Store(ctx context.Context, region string) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Store{
		client:     client,
		downloader: manager.NewDownloader(client),
	}, nil
}

// ListKeys pages through the bucket listing
func (s *S3Store) ListKeys(ctx context.Context, bucket string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list bucket %s: %w", bucket, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Download fetches the object with concurrent ranged GETs
func (s *S3Store) Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	n, err := s.downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
	}
	return n, nil
}

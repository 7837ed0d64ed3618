package narrative

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var _ interfaces.StorySource = (*S3Source)(nil)

// S3Config points at the bucket holding compiled stories.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // MinIO or another S3-compatible endpoint, optional
	AccessKeyID     string
	SecretAccessKey string
}

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads <prefix>/<storyId>.json from a bucket.
type S3Source struct {
	client objectGetter
	bucket string
	prefix string
}

// NewS3Source builds an S3 client from cfg. Static credentials are used when
// both keys are set, the default AWS chain otherwise.
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Source(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Source(client objectGetter, bucket, prefix string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Source) Load(ctx context.Context, storyID string) ([]byte, error) {
	if err := validateStoryID(storyID); err != nil {
		return nil, err
	}
	key := path.Join(s.prefix, storyID+".json")
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: story %s", models.ErrNotFound, storyID)
		}
		return nil, fmt.Errorf("failed to get story object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read story object %s: %w", key, err)
	}
	return data, nil
}

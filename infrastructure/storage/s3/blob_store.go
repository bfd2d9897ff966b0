// Package s3 stores backup archives in an S3 bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"tattoo-datasync/application/ports"
	apperrors "tattoo-datasync/pkg/errors"
)

// S3API is the subset of *s3.Client used by BlobStore.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var _ S3API = (*s3.Client)(nil)

// BlobStore implements ports.BlobStore on one bucket.
type BlobStore struct {
	client S3API
	bucket string
	region string
	logger *zap.Logger
}

var _ ports.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates a blob store for bucket.
func NewBlobStore(client S3API, bucket, region string, logger *zap.Logger) *BlobStore {
	return &BlobStore{client: client, bucket: bucket, region: region, logger: logger}
}

// EnsureBucket creates the bucket when HeadBucket reports it missing. Any
// other failure is a bucket setup error.
func (b *BlobStore) EnsureBucket(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return apperrors.NewExternalError("s3", err).
			WithCode(apperrors.CodeBucketSetup).
			WithDetails(map[string]interface{}{"bucket": b.bucket})
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(b.bucket)}
	if b.region != "" && b.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.region),
		}
	}
	if _, err := b.client.CreateBucket(ctx, input); err != nil {
		return apperrors.NewExternalError("s3", err).
			WithCode(apperrors.CodeBucketSetup).
			WithDetails(map[string]interface{}{"bucket": b.bucket})
	}
	b.logger.Info("Created backup bucket", zap.String("bucket", b.bucket))
	return nil
}

// Put uploads body under key.
func (b *BlobStore) Put(ctx context.Context, key string, body io.ReadSeeker) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return apperrors.NewExternalError("s3", err).WithDetails(map[string]interface{}{"key": key})
	}
	return nil
}

// Get downloads key. The caller closes the returned reader.
func (b *BlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("backup %s", key)).WithCause(err)
		}
		return nil, apperrors.NewExternalError("s3", err).WithDetails(map[string]interface{}{"key": key})
	}
	return out.Body, nil
}

// List returns every object under prefix.
func (b *BlobStore) List(ctx context.Context, prefix string) ([]ports.BlobObject, error) {
	var out []ports.BlobObject
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			return nil, apperrors.NewExternalError("s3", err)
		}
		for _, obj := range page.Contents {
			o := ports.BlobObject{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				o.LastModified = *obj.LastModified
			}
			out = append(out, o)
		}
	}
	return out, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}

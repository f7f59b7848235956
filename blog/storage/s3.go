package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dfryer1193/css3blog/blog/domain"
)

var _ domain.FileStorage = (*S3Storage)(nil)

const markdownContentType = "text/markdown; charset=utf-8"

// S3API is the subset of the S3 client used by S3Storage
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage keeps uploaded files in an S3 bucket, using the storage key as object key
type S3Storage struct {
	client S3API
	bucket string
}

func NewS3Storage(client S3API, bucket string) (*S3Storage, error) {
	if bucket == "" {
		return nil, errors.New("bucket cannot be empty")
	}
	return &S3Storage{
		client: client,
		bucket: bucket,
	}, nil
}

// Save buffers r in memory so the SDK gets a seekable body
func (s *S3Storage) Save(ctx context.Context, key string, r io.Reader) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(markdownContentType),
	})
	if err != nil {
		return fmt.Errorf("s3: failed to put object %s: %w", key, err)
	}

	return nil
}

func (s *S3Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return nil, fmt.Errorf("%w: %s", domain.ErrFileNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("s3: failed to get object %s: %w", key, err)
	}

	return out.Body, nil
}

// Delete removes the object; S3 treats deleting a missing key as success
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3: failed to delete object %s: %w", key, err)
	}
	return nil
}

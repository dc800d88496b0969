package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"tradeproof/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of *s3.Client used here.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Storage stores objects in one bucket of S3 or an S3-compatible service.
type S3Storage struct {
	client S3API
	bucket string
}

func NewS3Storage(client S3API, bucket string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket}
}

// NewS3Client builds a client from the default AWS config. A non-empty
// baseEndpoint points it at MinIO or another compatible service.
func NewS3Client(cfg aws.Config, baseEndpoint string) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if baseEndpoint != "" {
			o.BaseEndpoint = aws.String(baseEndpoint)
			o.UsePathStyle = true
		}
	})
}

func (s *S3Storage) Put(ctx context.Context, path string, data []byte, opts PutOptions) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.NoClobber {
		input.IfNoneMatch = aws.String("*")
	}

	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailure(err) {
			return "", types.ErrUploadConflict
		}
		return "", types.StorageError("Failed to upload file", err)
	}

	return path, nil
}

func (s *S3Storage) Get(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, types.ErrObjectNotFound
		}
		return nil, types.StorageError("Failed to download file", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, types.StorageError("Failed to download file", err)
	}

	return data, nil
}

func (s *S3Storage) Delete(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	objects := make([]s3types.ObjectIdentifier, 0, len(paths))
	for _, p := range paths {
		objects = append(objects, s3types.ObjectIdentifier{Key: aws.String(p)})
	}

	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return types.StorageError("Failed to delete file", err)
	}

	if len(out.Errors) > 0 {
		first := out.Errors[0]
		return types.StorageError("Failed to delete file", fmt.Errorf("delete %s: %s", aws.ToString(first.Key), aws.ToString(first.Message)))
	}

	return nil
}

func isPreconditionFailure(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}

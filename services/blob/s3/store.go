// Package s3blob stores the media objects in an S3 (or S3 compatible) bucket.
package s3blob

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
)

// api is the subset of the S3 client used by the Store.
type api interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type Store struct {
	client api
	bucket string
}

var _ core.BlobStore = (*Store)(nil)

func NewStore(ctx context.Context, conf core.StorageConfig) (*Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(conf.Region)}
	if conf.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AccessKey, conf.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if conf.Endpoint != "" { // minio & co
			o.BaseEndpoint = aws.String(conf.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Store{client: client, bucket: conf.Bucket}, nil
}

func (s *Store) Put(ctx context.Context, key, contentType string, size int64, body io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	return errors.Wrapf(err, "putting %s", key)
}

func (s *Store) Get(ctx context.Context, key string) (core.Blob, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return core.Blob{}, core.ErrBlobNotFound
		}
		return core.Blob{}, errors.Wrapf(err, "getting %s", key)
	}
	return core.Blob{
		Key:         key,
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
		Body:        out.Body,
	}, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
	}
	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: objects},
	})
	if err != nil {
		return errors.Wrap(err, "deleting objects")
	}
	if len(out.Errors) > 0 {
		e := out.Errors[0]
		return errors.Errorf("deleting %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
	}
	return nil
}

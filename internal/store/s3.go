package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

// S3API is the subset of the S3 client the backend uses.
type S3API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3Backend stores each key as one object: s3://{bucket}/{prefix}/{key}.
// S3 PutObject is atomic per object.
type S3Backend struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Backend(client S3API, bucket, prefix string) (*S3Backend, error) {
	if client == nil {
		return nil, xerrors.New("s3 client is required")
	}
	if bucket == "" {
		return nil, xerrors.New("s3 bucket is required")
	}
	return &S3Backend{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (s *S3Backend) Name() string { return "s3" }

func (s *S3Backend) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Ensure checks that the bucket is reachable; buckets are provisioned
// outside the app.
func (s *S3Backend) Ensure(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return xerrors.Wrapf(err, "head bucket %s", s.bucket)
	}
	return nil
}

func (s *S3Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, xerrors.Wrapf(err, "get S3 object s3://%s/%s", s.bucket, s.objectKey(key))
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read S3 object s3://%s/%s", s.bucket, s.objectKey(key))
	}
	return b, nil
}

func (s *S3Backend) Put(ctx context.Context, key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return xerrors.Wrapf(err, "put S3 object s3://%s/%s", s.bucket, s.objectKey(key))
	}
	return nil
}

// Delete is idempotent: S3 reports success for absent keys.
func (s *S3Backend) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return xerrors.Wrapf(err, "delete S3 object s3://%s/%s", s.bucket, s.objectKey(key))
	}
	return nil
}

func (s *S3Backend) List(ctx context.Context, dir string) ([]string, error) {
	if err := checkKey(dir); err != nil {
		return nil, err
	}
	p := s.objectKey(dir) + "/"
	pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(p),
		Delimiter: aws.String("/"),
	})

	var keys []string
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, xerrors.Wrapf(err, "list S3 prefix s3://%s/%s", s.bucket, p)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), p)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			keys = append(keys, path.Join(dir, name))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

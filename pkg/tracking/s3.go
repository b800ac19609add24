package tracking

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/siqueiraa/TabFlow/pkg/config"
)

// uploader mirrors a stored artifact and returns its remote URI.
type uploader interface {
	upload(ctx context.Context, localPath, key string) (string, error)
}

// objectPutter is the part of *manager.Uploader the mirror uses.
type objectPutter interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type s3Mirror struct {
	bucket string
	prefix string
	client objectPutter
}

func newS3Mirror(ctx context.Context, s3cfg config.S3Config) (*s3Mirror, error) {
	opts := []func(*awsConfig.LoadOptions) error{awsConfig.WithRegion(s3cfg.Region)}
	if s3cfg.AccessKey != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3cfg.AccessKey, s3cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &s3Mirror{
		bucket: s3cfg.Bucket,
		prefix: s3cfg.Prefix,
		client: manager.NewUploader(client),
	}, nil
}

// upload sends a file, or every file below a directory, under prefix+key.
func (m *s3Mirror) upload(ctx context.Context, localPath, key string) (string, error) {
	root := path.Join(m.prefix, key)

	err := filepath.WalkDir(localPath, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || skipEntry(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(localPath, p)
		if err != nil {
			return err
		}
		objectKey := root
		if rel != "." {
			objectKey = path.Join(root, filepath.ToSlash(rel))
		}
		return m.put(ctx, p, objectKey)
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", m.bucket, strings.TrimPrefix(root, "/")), nil
}

func (m *s3Mirror) put(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = m.client.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

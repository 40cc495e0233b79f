package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/builtbymom/tokenregistry/interfaces"
)

// S3Backend stores snapshots in S3 or a compatible object store. Without
// credentials the backend is read-only against public buckets.
type S3Backend struct {
	readClient  *s3.S3
	writeClient *s3.S3
	bucket      string
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewS3Backend creates an S3 backend. A non-empty endpoint targets
// S3-compatible stores like MinIO.
func NewS3Backend(bucket, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Backend, error) {
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucket, prefix, region)
	if endpoint != "" {
		uri += "&endpoint=" + endpoint
	}

	baseCfg := aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		baseCfg.Endpoint = aws.String(endpoint)
		baseCfg.S3ForcePathStyle = aws.Bool(true)
	}

	readSess, err := session.NewSession(&baseCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	readClient := s3.New(readSess)

	writeClient := readClient
	if accessKey != "" && secretKey != "" {
		writeCfg := baseCfg.Copy()
		writeCfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
		writeSess, err := session.NewSession(writeCfg)
		if err != nil {
			return nil, fmt.Errorf("create aws write session: %w", err)
		}
		writeClient = s3.New(writeSess)
	} else {
		log.Warn("No S3 credentials provided, snapshot publishing may fail", "bucket", bucket)
	}

	return &S3Backend{
		readClient:  readClient,
		writeClient: writeClient,
		bucket:      bucket,
		prefix:      strings.TrimSuffix(prefix, "/"),
		log:         log,
		locationURI: uri,
	}, nil
}

func (b *S3Backend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	key := b.objectKey(id, contentType)
	result, err := b.readClient.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "404") {
			return nil, interfaces.ErrContentNotFound
		}
		return nil, fmt.Errorf("get s3 object %s: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object %s: %w", key, err)
	}
	b.log.Debug("Fetched snapshot from S3", "bucket", b.bucket, "key", key, "size", len(data))
	return data, nil
}

func (b *S3Backend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	key := b.objectKey(id, contentType)

	_, err := b.writeClient.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
		ACL:    aws.String("public-read"),
	})
	if err != nil {
		return id, fmt.Errorf("put s3 object %s: %w", key, err)
	}
	b.log.Debug("Stored snapshot in S3", "bucket", b.bucket, "key", key, "content_id", id.String())
	return id, nil
}

func (b *S3Backend) Available(ctx context.Context) bool {
	_, err := b.readClient.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err != nil {
		b.log.Debug("S3 backend unavailable", "bucket", b.bucket, "err", err)
		return false
	}
	return true
}

func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucket)
}

func (b *S3Backend) LocationURI() string {
	return b.locationURI
}

func (b *S3Backend) objectKey(id interfaces.ContentID, contentType interfaces.ContentType) string {
	return path.Join(b.prefix, contentType.String(), id.String())
}

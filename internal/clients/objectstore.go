package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/sony/gobreaker"

	"github.com/bavena95/portal-creditos/internal/config"
	"github.com/bavena95/portal-creditos/internal/orchestrator"
)

const storageProbeName = "storage"

// ErrBucketNotConfigured is returned by every operation when no bucket name
// was configured.
var ErrBucketNotConfigured = errors.New("object storage bucket not configured")

// s3API is the subset of *s3.Client used by ObjectStore.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// presignAPI is the subset of *s3.PresignClient used by ObjectStore.
type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ObjectStore stores applicant documents in an S3-compatible bucket
// (Cloudflare R2 in production) and issues short-lived download links.
type ObjectStore struct {
	bucket       string
	presignTTL   time.Duration
	createBucket bool
	cb           *gobreaker.CircuitBreaker
	api          s3API
	presign      presignAPI
}

// NewObjectStore builds the S3 client from static credentials. No request is
// made at construction time.
func NewObjectStore(cfg config.StorageConfig, cb *gobreaker.CircuitBreaker) *ObjectStore {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.AccessKeyID != "" {
		opts.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		)
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	client := s3.New(opts)

	return &ObjectStore{
		bucket:       cfg.Bucket,
		presignTTL:   cfg.PresignTTL,
		createBucket: cfg.CreateBucket,
		cb:           cb,
		api:          client,
		presign:      s3.NewPresignClient(client),
	}
}

// Configured reports whether a bucket name is set.
func (o *ObjectStore) Configured() bool {
	return o.bucket != ""
}

// Put uploads body under key. size must be the exact body length.
func (o *ObjectStore) Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error {
	if !o.Configured() {
		return ErrBucketNotConfigured
	}
	_, err := o.cb.Execute(func() (any, error) {
		return o.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(o.bucket),
			Key:           aws.String(key),
			Body:          body,
			ContentLength: aws.Int64(size),
			ContentType:   aws.String(contentType),
		})
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error in S3.
func (o *ObjectStore) Delete(ctx context.Context, key string) error {
	if !o.Configured() {
		return ErrBucketNotConfigured
	}
	_, err := o.cb.Execute(func() (any, error) {
		return o.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(o.bucket),
			Key:    aws.String(key),
		})
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// PresignDownload returns a GET URL valid for the configured TTL that makes
// the browser save the object as filename.
func (o *ObjectStore) PresignDownload(ctx context.Context, key, filename string) (string, error) {
	if !o.Configured() {
		return "", ErrBucketNotConfigured
	}
	req, err := o.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(o.bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(ContentDisposition(filename)),
	}, s3.WithPresignExpires(o.presignTTL))
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", key, err)
	}
	return req.URL, nil
}

// ContentDisposition renders an attachment header for filename, falling back
// to "download" when it is empty.
func ContentDisposition(filename string) string {
	name := strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, strings.TrimSpace(filename))
	if name == "" {
		name = "download"
	}
	return fmt.Sprintf(`attachment; filename="%s"`, name)
}

// EnsureBucket verifies the bucket exists, creating it when allowed.
func (o *ObjectStore) EnsureBucket(ctx context.Context) error {
	if !o.Configured() {
		return ErrBucketNotConfigured
	}
	_, err := o.cb.Execute(func() (any, error) {
		_, err := o.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(o.bucket)})
		if err == nil {
			return nil, nil
		}
		if !isNotFound(err) || !o.createBucket {
			return nil, fmt.Errorf("bucket %s: %w", o.bucket, err)
		}
		if _, err := o.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(o.bucket)}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", o.bucket, err)
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return fmt.Errorf("circuit open: %w", err)
		}
		return err
	}
	return nil
}

// Probe checks the bucket is reachable with HeadBucket.
func (o *ObjectStore) Probe(ctx context.Context) orchestrator.ProbeResult {
	start := time.Now()

	_, err := o.cb.Execute(func() (any, error) {
		if !o.Configured() {
			return nil, ErrBucketNotConfigured
		}
		if _, err := o.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(o.bucket)}); err != nil {
			return nil, fmt.Errorf("head bucket: %w", err)
		}
		return nil, nil
	})

	return toProbeResult(storageProbeName, start, err)
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}

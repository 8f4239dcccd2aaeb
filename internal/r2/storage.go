package r2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/luismateoh/Aldebaran-sub001/internal/cache"
	conf "github.com/luismateoh/Aldebaran-sub001/internal/config"
)

// StoreError wraps upload and existence-probe failures against the bucket.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

type S3 struct {
	AccountID          string
	Bucket             string
	Region             string // usually "auto" for R2
	AwsAccessKeyId     string
	AwsSecretAccessKey string

	PublicBase string
	KeyPrefix  string

	MaxRetries     int
	RetryBaseDelay time.Duration

	S3Client *s3.Client
	Uploader *manager.Uploader

	Cache *cache.Cache
}

func NewStorage(cfg *conf.R2Config, redisCache *cache.Cache) (*S3, error) {
	r2c := &S3{
		AccountID:          cfg.AccountID,
		Bucket:             cfg.BucketName,
		Region:             "auto",
		AwsAccessKeyId:     cfg.AccessKeyID,
		AwsSecretAccessKey: cfg.SecretKey,
		PublicBase:         strings.TrimRight(cfg.PublicBase, "/"),
		KeyPrefix:          strings.Trim(cfg.KeyPrefix, "/"),
		MaxRetries:         3,
		RetryBaseDelay:     300 * time.Millisecond,
		Cache:              redisCache,
	}
	if r2c.KeyPrefix == "" {
		r2c.KeyPrefix = "eventos"
	}
	if err := r2c.Run(); err != nil {
		return nil, err
	}

	return r2c, nil
}

func (s *S3) Run() error {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.AwsAccessKeyId, s.AwsSecretAccessKey, "",
		)),
		config.WithRegion(s.Region),
	)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	s.S3Client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", s.AccountID))
		o.UsePathStyle = true
	})
	s.Uploader = manager.NewUploader(s.S3Client)

	return nil
}

// OptimizedKey and ThumbKey are the only key layout the service uses:
// <prefix>/<eventId>_optimized.webp and <prefix>/<eventId>_thumb.webp.
func (s *S3) OptimizedKey(eventID string) string {
	return fmt.Sprintf("%s/%s_optimized.webp", s.KeyPrefix, eventID)
}

func (s *S3) ThumbKey(eventID string) string {
	return fmt.Sprintf("%s/%s_thumb.webp", s.KeyPrefix, eventID)
}

func (s *S3) PublicURL(key string) string {
	return s.PublicBase + "/" + key
}

// Upload puts payload under key and returns its public URL. Transient
// failures are retried with jittered exponential backoff.
func (s *S3) Upload(ctx context.Context, key string, contentType string, payload []byte) (string, error) {
	// An overwrite makes any recorded flag untrustworthy until the put
	// lands, so checks in the meantime go back to the bucket. The flag
	// is re-marked on success.
	if s.Cache != nil {
		_ = s.Cache.Remove(ctx, key)
	}

	var err error
	attempt := 0

	for {
		attempt++
		_, err = s.Uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(payload),
			ContentType: aws.String(contentType),
		})
		if err == nil {
			if s.Cache != nil {
				_ = s.Cache.MarkExists(ctx, key)
			}
			return s.PublicURL(key), nil
		}

		if attempt > s.MaxRetries || ctx.Err() != nil {
			return "", &StoreError{Op: "upload", Key: key, Err: err}
		}

		backoff := s.backoffDelay(attempt)
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", &StoreError{Op: "upload", Key: key, Err: ctx.Err()}
		}
	}
}

// Exists probes the bucket for key via HeadObject. Positive results are
// cached; a miss always goes to the bucket.
func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	if s.Cache != nil && s.Cache.Exists(ctx, key) {
		return true, nil
	}

	_, err := s.S3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, &StoreError{Op: "head", Key: key, Err: err}
	}

	if s.Cache != nil {
		_ = s.Cache.MarkExists(ctx, key)
	}
	return true, nil
}

func (s *S3) backoffDelay(attempt int) time.Duration {
	delay := s.RetryBaseDelay << (attempt - 1)
	jitter := time.Duration(int64(delay) / 10)
	return delay - (jitter / 2) + time.Duration(int64(jitter)*time.Now().UnixNano()%2)
}

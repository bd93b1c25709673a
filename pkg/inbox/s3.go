package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dmitrymomot/mailpipe/pkg/logger"
)

// S3Config locates raw inbound mail in an S3-compatible bucket, such as the
// objects an SES receipt rule writes.
type S3Config struct {
	Bucket string `env:"INBOX_S3_BUCKET"`
	Prefix string `env:"INBOX_S3_PREFIX" envDefault:"inbound/"`
	// ProcessedPrefix receives acknowledged messages. Empty deletes them.
	ProcessedPrefix string `env:"INBOX_S3_PROCESSED_PREFIX" envDefault:"processed/"`
	Region          string `env:"INBOX_S3_REGION" envDefault:"us-east-1"`
	// Endpoint targets MinIO or another S3-compatible service.
	Endpoint  string `env:"INBOX_S3_ENDPOINT"`
	AccessKey string `env:"INBOX_S3_ACCESS_KEY"`
	SecretKey string `env:"INBOX_S3_SECRET_KEY"`
	PathStyle bool   `env:"INBOX_S3_PATH_STYLE" envDefault:"false"`
	// MaxMessages caps one Unseen call.
	MaxMessages int `env:"INBOX_S3_MAX_MESSAGES" envDefault:"100"`
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

func (c S3Config) validate() error {
	switch {
	case c.Bucket == "":
		return fmt.Errorf("%w: bucket is required", ErrS3Config)
	case c.AccessKey == "" || c.SecretKey == "":
		return fmt.Errorf("%w: access and secret keys are required", ErrS3Config)
	case c.ProcessedPrefix != "" && strings.HasPrefix(c.ProcessedPrefix, c.Prefix):
		return fmt.Errorf("%w: processed prefix must not be inside the inbound prefix", ErrS3Config)
	}
	return nil
}

// S3API is the subset of the S3 client the reader uses.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Reader reads raw messages stored under a bucket prefix. Object keys are
// the raw ids.
type S3Reader struct {
	client S3API
	logger *slog.Logger
	cfg    S3Config
}

// NewS3Reader builds an S3 client with static credentials.
func NewS3Reader(cfg S3Config, log *slog.Logger) (*S3Reader, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := s3.New(s3.Options{}, func(o *s3.Options) {
		o.Region = cfg.Region
		o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		}
	})
	return NewS3ReaderWithClient(client, cfg, log), nil
}

// NewS3ReaderWithClient uses an existing client.
func NewS3ReaderWithClient(client S3API, cfg S3Config, log *slog.Logger) *S3Reader {
	if log == nil {
		log = logger.NewNope()
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 100
	}
	return &S3Reader{client: client, cfg: cfg, logger: log}
}

// Unseen returns up to MaxMessages parsed messages in key order. Objects
// that cannot be parsed are acknowledged and skipped.
func (r *S3Reader) Unseen(ctx context.Context) ([]Message, error) {
	pages := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.cfg.Bucket),
		Prefix: aws.String(r.cfg.Prefix),
	})

	var msgs []Message
	for pages.HasMorePages() && len(msgs) < r.cfg.MaxMessages {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, errors.Join(ErrRead, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			m, err := r.fetch(ctx, key)
			if errors.Is(err, ErrParseMessage) || errors.Is(err, ErrNoBody) {
				r.logger.WarnContext(ctx, "skipping inbound message",
					slog.String("raw_id", key),
					slog.Any("error", err),
				)
				if err := r.Ack(ctx, key); err != nil {
					return nil, err
				}
				continue
			}
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, m)
			if len(msgs) == r.cfg.MaxMessages {
				break
			}
		}
	}
	return msgs, nil
}

func (r *S3Reader) fetch(ctx context.Context, key string) (Message, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Message{}, errors.Join(ErrRead, err)
	}
	defer out.Body.Close()
	return ParseMessage(key, out.Body)
}

// Ack moves each object under ProcessedPrefix, or deletes it when no
// processed prefix is set. Objects already gone count as acknowledged.
func (r *S3Reader) Ack(ctx context.Context, rawIDs ...string) error {
	for _, key := range rawIDs {
		if r.cfg.ProcessedPrefix != "" {
			dst := r.cfg.ProcessedPrefix + strings.TrimPrefix(key, r.cfg.Prefix)
			_, err := r.client.CopyObject(ctx, &s3.CopyObjectInput{
				Bucket:     aws.String(r.cfg.Bucket),
				CopySource: aws.String(url.PathEscape(r.cfg.Bucket + "/" + key)),
				Key:        aws.String(dst),
			})
			if isNotFound(err) {
				continue
			}
			if err != nil {
				return errors.Join(ErrAck, err)
			}
		}

		_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(r.cfg.Bucket),
			Key:    aws.String(key),
		})
		if err != nil && !isNotFound(err) {
			return errors.Join(ErrAck, err)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

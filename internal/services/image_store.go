package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/BradenHooton/accountd/internal/config"
	"github.com/BradenHooton/accountd/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ImageStore persists profile pictures and returns a stable URL for them
type ImageStore interface {
	Upload(ctx context.Context, accountID string, r io.Reader) (string, error)
}

// S3PutObjectAPI is the subset of the S3 client used here
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// S3ImageStore uploads profile pictures to an S3-compatible bucket
type S3ImageStore struct {
	client        S3PutObjectAPI
	bucket        string
	publicBaseURL string
	maxBytes      int64
	logger        *slog.Logger
}

// NewS3ImageStore builds an S3 client. Static credentials and a custom
// endpoint are used when configured (MinIO), otherwise the default chain.
func NewS3ImageStore(ctx context.Context, cfg config.ImageConfig, logger *slog.Logger) (*S3ImageStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewImageStoreWithClient(client, cfg, logger), nil
}

// NewImageStoreWithClient builds the store around an existing S3 client
func NewImageStoreWithClient(client S3PutObjectAPI, cfg config.ImageConfig, logger *slog.Logger) *S3ImageStore {
	return &S3ImageStore{
		client:        client,
		bucket:        cfg.S3Bucket,
		publicBaseURL: publicBaseURL(cfg),
		maxBytes:      cfg.MaxUploadBytes,
		logger:        logger,
	}
}

func publicBaseURL(cfg config.ImageConfig) string {
	switch {
	case cfg.PublicBaseURL != "":
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	case cfg.S3Endpoint != "":
		return strings.TrimRight(cfg.S3Endpoint, "/") + "/" + cfg.S3Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.S3Region)
	}
}

// Upload reads the whole picture, checks its sniffed type and size, stores it
// under profiles/{accountID}/ and returns its public URL.
func (s *S3ImageStore) Upload(ctx context.Context, accountID string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read profile picture: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", models.ErrImageTooLarge
	}

	mtype := mimetype.Detect(data)
	ext, ok := allowedImageTypes[mtype.String()]
	if !ok {
		return "", models.ErrUnsupportedImage
	}

	key := fmt.Sprintf("profiles/%s/%s%s", accountID, uuid.New().String(), ext)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(mtype.String()),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		s.logger.Error("failed to upload profile picture",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return "", fmt.Errorf("failed to upload profile picture: %w", err)
	}

	s.logger.Info("profile picture uploaded",
		slog.String("account_id", accountID),
		slog.String("key", key),
		slog.Int("bytes", len(data)))

	return s.publicBaseURL + "/" + key, nil
}

// Package blob stores attachments in S3-compatible object storage: server-side
// writes for the sanitization pipeline and signed-URL generation for direct
// client uploads.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/oceanworks/deckhand/internal/entity"
)

// Allowed MIME types for attachments. Fault and work order photos, plus PDF
// for certificate scans and survey reports.
const (
	MIMEImageJPEG = "image/jpeg"
	MIMEImagePNG  = "image/png"
	MIMEImageWebP = "image/webp"
	MIMEAppPDF    = "application/pdf"
)

// Validation errors
var (
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrFileTooLarge    = errors.New("file size exceeds maximum allowed")
	ErrInvalidEntityID = errors.New("invalid entity id")
)

// AllowedMIMETypes maps allowed MIME types to their file extensions
var AllowedMIMETypes = map[string]string{
	MIMEImageJPEG: ".jpg",
	MIMEImagePNG:  ".png",
	MIMEImageWebP: ".webp",
	MIMEAppPDF:    ".pdf",
}

// SignedURLRequest represents a request for a signed upload URL.
type SignedURLRequest struct {
	TenantID    string        // Owning vessel, always taken from the verified context
	Family      entity.Family // Entity family the attachment belongs to
	EntityID    string        // Entity the attachment belongs to
	ContentType string        // MIME type of the file
	SizeBytes   int64         // Size of the file in bytes
}

// SignedURLResponse represents the response containing the signed URL and metadata.
type SignedURLResponse struct {
	URL       string    `json:"url"`        // Pre-signed PUT URL
	Key       string    `json:"key"`        // Object key
	ExpiresAt time.Time `json:"expires_at"` // URL expiration time
}

// Service handles generating signed URLs for attachment uploads.
type Service struct {
	s3Client      *s3.Client
	presignClient *s3.PresignClient
	bucketName    string
	maxSizeBytes  int64
	urlExpiry     time.Duration
	timeNow       func() time.Time // For testability
}

// ServiceConfig holds configuration for the blob service.
type ServiceConfig struct {
	BucketName       string
	AccessKeyID      string
	SecretAccessKey  string
	Endpoint         string
	MaxSizeMB        int
	URLExpiryMinutes int // Default: 5 minutes
}

// NewService creates a new blob service with the given configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	// Default values
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 25
	}
	if cfg.URLExpiryMinutes <= 0 {
		cfg.URLExpiryMinutes = 5
	}

	// S3-compatible configuration; R2 and MinIO both need path-style addressing
	s3Client := s3.New(s3.Options{
		Region: "auto",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	presignClient := s3.NewPresignClient(s3Client)

	return &Service{
		s3Client:      s3Client,
		presignClient: presignClient,
		bucketName:    cfg.BucketName,
		maxSizeBytes:  int64(cfg.MaxSizeMB) * 1024 * 1024,
		urlExpiry:     time.Duration(cfg.URLExpiryMinutes) * time.Minute,
		timeNow:       time.Now,
	}, nil
}

// ValidateContentType checks if the content type is allowed.
func ValidateContentType(contentType string) error {
	if _, ok := AllowedMIMETypes[contentType]; !ok {
		return ErrUnsupportedType
	}
	return nil
}

// ValidateFileSize checks if the file size is within limits.
func (s *Service) ValidateFileSize(sizeBytes int64) error {
	if sizeBytes > s.maxSizeBytes {
		return ErrFileTooLarge
	}
	if sizeBytes <= 0 {
		return errors.New("file size must be positive")
	}
	return nil
}

// GenerateObjectKey creates a unique object key for an attachment.
// Pattern: {tenantId}/{family}/{entityId}/uuid.ext
func GenerateObjectKey(tenantID string, family entity.Family, entityID, contentType string) (string, error) {
	ext, ok := AllowedMIMETypes[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}

	tenant := sanitizePathComponent(tenantID)
	id := sanitizePathComponent(entityID)
	if tenant == "" || id == "" {
		return "", ErrInvalidEntityID
	}

	key := fmt.Sprintf("%s/%s/%s/%s%s", tenant, family, id, uuid.New().String(), ext)
	return key, nil
}

// sanitizePathComponent removes potentially dangerous characters from path components.
func sanitizePathComponent(s string) string {
	// Only allow alphanumeric, hyphens, and underscores
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// GenerateSignedURL generates a pre-signed PUT URL for a direct attachment upload.
func (s *Service) GenerateSignedURL(ctx context.Context, req SignedURLRequest) (*SignedURLResponse, error) {
	if err := ValidateContentType(req.ContentType); err != nil {
		return nil, err
	}

	if err := s.ValidateFileSize(req.SizeBytes); err != nil {
		return nil, err
	}

	if !entity.ValidFamily(req.Family) {
		return nil, ErrInvalidEntityID
	}

	key, err := GenerateObjectKey(req.TenantID, req.Family, req.EntityID, req.ContentType)
	if err != nil {
		return nil, err
	}

	putObjectInput := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		ContentType:   aws.String(req.ContentType),
		ContentLength: aws.Int64(req.SizeBytes),
	}

	presignedReq, err := s.presignClient.PresignPutObject(ctx, putObjectInput, func(opts *s3.PresignOptions) {
		opts.Expires = s.urlExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to presign request: %w", err)
	}

	expiresAt := s.timeNow().Add(s.urlExpiry)

	return &SignedURLResponse{
		URL:       presignedReq.URL,
		Key:       key,
		ExpiresAt: expiresAt,
	}, nil
}

// Put stores an object server-side under a freshly generated key and returns
// the key. Used by the attachment pipeline after sanitization; direct client
// uploads go through GenerateSignedURL instead.
func (s *Service) Put(ctx context.Context, req SignedURLRequest, data []byte) (string, error) {
	if err := ValidateContentType(req.ContentType); err != nil {
		return "", err
	}
	if err := s.ValidateFileSize(int64(len(data))); err != nil {
		return "", err
	}
	if !entity.ValidFamily(req.Family) {
		return "", ErrInvalidEntityID
	}

	key, err := GenerateObjectKey(req.TenantID, req.Family, req.EntityID, req.ContentType)
	if err != nil {
		return "", err
	}

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		ContentType: aws.String(req.ContentType),
		Body:        bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store object: %w", err)
	}
	return key, nil
}

// DeleteObject removes one stored attachment. Restricted to the master role at
// the API layer; ledger rows are never touched by removal.
func (s *Service) DeleteObject(ctx context.Context, key string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// ListForEntity lists attachment object keys stored under an entity's prefix.
func (s *Service) ListForEntity(ctx context.Context, tenantID string, family entity.Family, entityID string) ([]string, error) {
	tenant := sanitizePathComponent(tenantID)
	id := sanitizePathComponent(entityID)
	if tenant == "" || id == "" {
		return nil, ErrInvalidEntityID
	}

	prefix := fmt.Sprintf("%s/%s/%s/", tenant, family, id)
	out, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	return keys, nil
}

// HealthCheck verifies the bucket is reachable.
func (s *Service) HealthCheck(ctx context.Context) error {
	_, err := s.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucketName),
	})
	if err != nil {
		return fmt.Errorf("blob storage unreachable: %w", err)
	}
	return nil
}

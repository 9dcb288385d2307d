package blob

import (
	"strings"
	"testing"

	"github.com/oceanworks/deckhand/internal/entity"
)

// TestValidateContentType tests MIME type validation.
func TestValidateContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		expectError bool
	}{
		{
			name:        "valid image/jpeg",
			contentType: MIMEImageJPEG,
			expectError: false,
		},
		{
			name:        "valid image/png",
			contentType: MIMEImagePNG,
			expectError: false,
		},
		{
			name:        "valid image/webp",
			contentType: MIMEImageWebP,
			expectError: false,
		},
		{
			name:        "valid application/pdf",
			contentType: MIMEAppPDF,
			expectError: false,
		},
		{
			name:        "invalid image/gif",
			contentType: "image/gif",
			expectError: true,
		},
		{
			name:        "invalid video/mp4",
			contentType: "video/mp4",
			expectError: true,
		},
		{
			name:        "empty content type",
			contentType: "",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContentType(tt.contentType)
			if tt.expectError && err == nil {
				t.Errorf("expected error for content type %s, got nil", tt.contentType)
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error for content type %s: %v", tt.contentType, err)
			}
			if tt.expectError && err != ErrUnsupportedType {
				t.Errorf("expected ErrUnsupportedType, got %v", err)
			}
		})
	}
}

// TestValidateFileSize tests file size validation.
func TestValidateFileSize(t *testing.T) {
	service := &Service{
		maxSizeBytes: 25 * 1024 * 1024, // 25MB
	}

	tests := []struct {
		name        string
		sizeBytes   int64
		expectError bool
	}{
		{
			name:        "valid 1MB file",
			sizeBytes:   1 * 1024 * 1024,
			expectError: false,
		},
		{
			name:        "valid 25MB file (at limit)",
			sizeBytes:   25 * 1024 * 1024,
			expectError: false,
		},
		{
			name:        "invalid 26MB file (over limit)",
			sizeBytes:   26 * 1024 * 1024,
			expectError: true,
		},
		{
			name:        "invalid zero size",
			sizeBytes:   0,
			expectError: true,
		},
		{
			name:        "invalid negative size",
			sizeBytes:   -1,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.ValidateFileSize(tt.sizeBytes)
			if tt.expectError && err == nil {
				t.Errorf("expected error for size %d, got nil", tt.sizeBytes)
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error for size %d: %v", tt.sizeBytes, err)
			}
		})
	}
}

// TestGenerateObjectKey tests object key generation.
func TestGenerateObjectKey(t *testing.T) {
	tests := []struct {
		name        string
		tenantID    string
		family      entity.Family
		entityID    string
		contentType string
		wantPrefix  string
		wantSuffix  string
		expectError bool
	}{
		{
			name:        "fault photo",
			tenantID:    "mv-aurora",
			family:      entity.FamilyFault,
			entityID:    "f-123",
			contentType: MIMEImageJPEG,
			wantPrefix:  "mv-aurora/fault/f-123/",
			wantSuffix:  ".jpg",
		},
		{
			name:        "certificate scan",
			tenantID:    "mv-aurora",
			family:      entity.FamilyCertificate,
			entityID:    "cert-7",
			contentType: MIMEAppPDF,
			wantPrefix:  "mv-aurora/certificate/cert-7/",
			wantSuffix:  ".pdf",
		},
		{
			name:        "path traversal stripped from entity id",
			tenantID:    "mv-aurora",
			family:      entity.FamilyFault,
			entityID:    "../../etc/passwd",
			contentType: MIMEImagePNG,
			wantPrefix:  "mv-aurora/fault/etcpasswd/",
			wantSuffix:  ".png",
		},
		{
			name:        "unsupported content type",
			tenantID:    "mv-aurora",
			family:      entity.FamilyFault,
			entityID:    "f-123",
			contentType: "image/gif",
			expectError: true,
		},
		{
			name:        "entity id sanitizes to empty",
			tenantID:    "mv-aurora",
			family:      entity.FamilyFault,
			entityID:    "///",
			contentType: MIMEImageJPEG,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := GenerateObjectKey(tt.tenantID, tt.family, tt.entityID, tt.contentType)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error, got key %q", key)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.HasPrefix(key, tt.wantPrefix) {
				t.Errorf("key %q does not have prefix %q", key, tt.wantPrefix)
			}
			if !strings.HasSuffix(key, tt.wantSuffix) {
				t.Errorf("key %q does not have suffix %q", key, tt.wantSuffix)
			}
		})
	}
}

// TestGenerateObjectKey_Unique verifies two keys for the same entity differ.
func TestGenerateObjectKey_Unique(t *testing.T) {
	key1, err := GenerateObjectKey("mv-aurora", entity.FamilyFault, "f-1", MIMEImageJPEG)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key2, err := GenerateObjectKey("mv-aurora", entity.FamilyFault, "f-1", MIMEImageJPEG)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key1 == key2 {
		t.Errorf("expected unique keys, got %q twice", key1)
	}
}

// TestNewService_Validation tests service configuration validation.
func TestNewService_Validation(t *testing.T) {
	valid := ServiceConfig{
		BucketName:      "deckhand-attachments",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Endpoint:        "https://storage.example.com",
	}

	tests := []struct {
		name        string
		mutate      func(cfg *ServiceConfig)
		expectError bool
	}{
		{
			name:   "valid config",
			mutate: func(cfg *ServiceConfig) {},
		},
		{
			name:        "missing bucket",
			mutate:      func(cfg *ServiceConfig) { cfg.BucketName = "" },
			expectError: true,
		},
		{
			name:        "missing access key",
			mutate:      func(cfg *ServiceConfig) { cfg.AccessKeyID = "" },
			expectError: true,
		},
		{
			name:        "missing secret",
			mutate:      func(cfg *ServiceConfig) { cfg.SecretAccessKey = "" },
			expectError: true,
		},
		{
			name:        "missing endpoint",
			mutate:      func(cfg *ServiceConfig) { cfg.Endpoint = "" },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			svc, err := NewService(cfg)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if svc.maxSizeBytes != 25*1024*1024 {
				t.Errorf("expected default max size 25MB, got %d", svc.maxSizeBytes)
			}
			if svc.urlExpiry.Minutes() != 5 {
				t.Errorf("expected default expiry 5m, got %s", svc.urlExpiry)
			}
		})
	}
}

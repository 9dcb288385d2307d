// Package idempotency provides models and services for idempotency key management.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Key lifecycle states. The current store only persists completed responses;
// StatusProcessing is reserved for marking a key while the first request is
// in flight.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

// MaxKeyLength bounds client-chosen keys.
const MaxKeyLength = 64

var (
	ErrKeyNotFound = errors.New("idempotency key not found")
	ErrKeyExists   = errors.New("idempotency key already exists")
	ErrInvalidKey  = errors.New("invalid idempotency key")
	ErrKeyTooLong  = errors.New("idempotency key exceeds maximum length of 64 characters")
)

// IdempotencyKey is a stored key together with the response it caches. A
// replayed request gets ResponseBody and ResponseStatusCode verbatim.
type IdempotencyKey struct {
	Key                string    `json:"key"`
	Method             string    `json:"method"`
	Route              string    `json:"route"`
	CreatedAt          time.Time `json:"created_at"`
	TenantID           string    `json:"tenant_id,omitempty"`
	ResponseHash       string    `json:"response_hash"`
	Status             string    `json:"status"`
	ResponseBody       string    `json:"response_body"`
	ResponseStatusCode int       `json:"response_status_code"`
}

// ValidateKey rejects empty keys (ErrInvalidKey) and keys over MaxKeyLength
// (ErrKeyTooLong).
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}

// ComputeResponseHash returns the hex SHA-256 of a response body, stored
// alongside the body to detect corruption of cached responses.
func ComputeResponseHash(responseBody string) string {
	hash := sha256.Sum256([]byte(responseBody))
	return hex.EncodeToString(hash[:])
}

// Repository persists idempotency keys. Records are scoped per tenant: the
// same client-chosen key held by two tenants names two independent records,
// so one tenant can never replay another tenant's cached response.
type Repository interface {
	// Get returns the record stored under (tenantID, key), or ErrKeyNotFound.
	Get(tenantID, key string) (*IdempotencyKey, error)

	// Store saves a new record under (record.TenantID, record.Key), or
	// returns ErrKeyExists for a duplicate within that tenant.
	Store(record *IdempotencyKey) error

	// DeleteOlderThan removes records older than the duration, returning
	// how many were dropped. Used by the cleanup job.
	DeleteOlderThan(duration time.Duration) (int64, error)
}

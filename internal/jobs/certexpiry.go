package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/notify"
	"github.com/oceanworks/deckhand/internal/state"
)

// DefaultExpiryWarning is how far ahead of expiry a certificate is reported.
// 30 days matches the usual port-state-control renewal window.
const DefaultExpiryWarning = 30 * 24 * time.Hour

// CertificateExpiryScan reports certificates that are past or approaching
// their expires_at date. It only detects and notifies; flagging and expiring
// remain signed-off actions taken by the crew.
type CertificateExpiryScan struct {
	store    entity.Store
	notifier notify.Notifier
	tenants  []string
	warning  time.Duration
	logger   *slog.Logger
	timeNow  func() time.Time
}

// NewCertificateExpiryScan creates the scan for the given provisioned tenants.
func NewCertificateExpiryScan(store entity.Store, notifier notify.Notifier, tenants []string, warning time.Duration, logger *slog.Logger) *CertificateExpiryScan {
	if warning <= 0 {
		warning = DefaultExpiryWarning
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CertificateExpiryScan{
		store:    store,
		notifier: notifier,
		tenants:  tenants,
		warning:  warning,
		logger:   logger,
		timeNow:  time.Now,
	}
}

// Name implements Job.
func (s *CertificateExpiryScan) Name() string { return JobCertificateExpiryScan }

// Run implements Job.
func (s *CertificateExpiryScan) Run(ctx context.Context) error {
	now := s.timeNow().UTC()

	for _, tenantID := range s.tenants {
		for _, status := range []entity.Status{state.CertificateActive, state.CertificateExpiring} {
			certs, err := s.store.List(ctx, tenantID, entity.FamilyCertificate, entity.Filter{Status: status})
			if err != nil {
				return fmt.Errorf("list certificates for %s: %w", tenantID, err)
			}
			for _, cert := range certs {
				s.check(ctx, cert, now)
			}
		}
	}
	return nil
}

func (s *CertificateExpiryScan) check(ctx context.Context, cert *entity.Entity, now time.Time) {
	raw, ok := cert.Fields["expires_at"]
	if !ok {
		return
	}
	expiresAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		s.logger.WarnContext(ctx, "certificate has unparseable expires_at",
			"tenant_id", cert.TenantID,
			"certificate_id", cert.ID,
			"expires_at", raw,
		)
		return
	}

	var event string
	switch {
	case !expiresAt.After(now):
		event = "certificateExpiryDetected"
	case expiresAt.Sub(now) <= s.warning && cert.Status == state.CertificateActive:
		event = "certificateExpiryApproaching"
	default:
		return
	}

	s.logger.WarnContext(ctx, "certificate expiry scan finding",
		"event", event,
		"tenant_id", cert.TenantID,
		"certificate_id", cert.ID,
		"status", cert.Status,
		"expires_at", expiresAt.Format(time.RFC3339),
	)
	s.notifier.Notify(ctx, notify.Event{
		TenantID: cert.TenantID,
		Action:   event,
		Family:   entity.FamilyCertificate,
		EntityID: cert.ID,
		Status:   cert.Status,
		At:       now,
	})
}

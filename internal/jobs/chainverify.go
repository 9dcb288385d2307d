package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oceanworks/deckhand/internal/ledger"
	"github.com/oceanworks/deckhand/internal/tracing"
)

// LedgerChainVerify re-walks each tenant's ledger hash chain. A broken link
// means a row was altered outside Append, which should be impossible; the job
// exists so that "impossible" gets noticed.
type LedgerChainVerify struct {
	ledger  ledger.Ledger
	tenants []string
	logger  *slog.Logger
}

// NewLedgerChainVerify creates the verification job for the given tenants.
func NewLedgerChainVerify(led ledger.Ledger, tenants []string, logger *slog.Logger) *LedgerChainVerify {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerChainVerify{ledger: led, tenants: tenants, logger: logger}
}

// Name implements Job.
func (v *LedgerChainVerify) Name() string { return JobLedgerChainVerify }

// Run implements Job.
func (v *LedgerChainVerify) Run(ctx context.Context) (err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "verify_ledger_chain")
	defer func() { endSpan(err) }()

	for _, tenantID := range v.tenants {
		entries, err := v.ledger.AllForTenant(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("load ledger for %s: %w", tenantID, err)
		}
		if broken := ledger.VerifyChain(entries); broken >= 0 {
			v.logger.ErrorContext(ctx, "ledger hash chain broken",
				"tenant_id", tenantID,
				"entry_index", broken,
				"entry_id", entries[broken].ID,
			)
			return fmt.Errorf("ledger chain broken for tenant %s at entry %d", tenantID, broken)
		}
	}
	return nil
}

package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ExportFormat defines supported export formats.
type ExportFormat string

const (
	// ExportFormatCSV exports entries as comma-separated values.
	ExportFormatCSV ExportFormat = "csv"
	// ExportFormatJSON exports entries as a JSON array.
	ExportFormatJSON ExportFormat = "json"
	// ExportFormatCBOR exports entries as a CBOR array, the compact form
	// used for offline archival.
	ExportFormatCBOR ExportFormat = "cbor"
)

// ExportOptions configures a ledger export.
type ExportOptions struct {
	Format     ExportFormat
	From       time.Time // start of range, inclusive; zero = unbounded
	To         time.Time // end of range, inclusive; zero = unbounded
	SignedOnly bool      // export only signed entries
	Limit      int       // maximum entries, 0 = no limit
}

// exporter is the read surface Export needs; both ledger implementations
// satisfy it.
type exporter interface {
	AllForTenant(ctx context.Context, tenantID string) ([]*Entry, error)
}

// Export renders a tenant's ledger entries in the requested format.
func Export(ctx context.Context, src exporter, tenantID string, opts ExportOptions) ([]byte, error) {
	switch opts.Format {
	case ExportFormatCSV, ExportFormatJSON, ExportFormatCBOR:
	default:
		return nil, fmt.Errorf("unsupported export format: %s", opts.Format)
	}

	entries, err := src.AllForTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}

	filtered := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if opts.SignedOnly && !e.Signed() {
			continue
		}
		if !opts.From.IsZero() && e.CreatedAt.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && e.CreatedAt.After(opts.To) {
			continue
		}
		filtered = append(filtered, e)
		if opts.Limit > 0 && len(filtered) >= opts.Limit {
			break
		}
	}

	switch opts.Format {
	case ExportFormatCSV:
		return exportCSV(filtered)
	case ExportFormatJSON:
		return json.Marshal(filtered)
	default:
		return cbor.Marshal(filtered)
	}
}

func exportCSV(entries []*Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"id", "tenant_id", "family", "entity_id", "action",
		"actor_id", "actor_role", "signed", "request_id", "origin", "hash", "created_at"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, e := range entries {
		record := []string{
			e.ID, e.TenantID, string(e.Family), e.EntityID, e.Action,
			e.ActorID, e.ActorRole, strconv.FormatBool(e.Signed()),
			e.RequestID, e.Origin, e.Hash,
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

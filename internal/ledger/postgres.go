package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oceanworks/deckhand/internal/entity"
)

// PostgresLedger is the Postgres-backed Ledger. The table is append-only:
// no UPDATE or DELETE statement exists here, and the migration installs a
// trigger rejecting both.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger creates a PostgresLedger on the given connection pool.
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

const ledgerColumns = "id, tenant_id, family, entity_id, action, actor_id, actor_name, actor_role, before_snapshot, after_snapshot, signature, request_id, origin, prev_hash, hash, created_at"

// Append records one entry in its own transaction.
func (l *PostgresLedger) Append(ctx context.Context, e *Entry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := AppendTx(ctx, tx, e); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger append: %w", err)
	}
	return nil
}

// AppendTx validates and records one entry inside an existing transaction.
// The executor uses this to make the ledger row and the entity write one
// atomic unit. A per-tenant advisory lock serializes concurrent appends:
// a row lock on the chain head alone cannot, because a tenant's first two
// appends race on an empty chain with no row to lock, and both would write
// a genesis entry.
func AppendTx(ctx context.Context, tx *sql.Tx, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := e.Validate(); err != nil {
		return err
	}

	// Held until the transaction commits or rolls back.
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext('audit_ledger'), hashtext($1))`,
		e.TenantID); err != nil {
		return fmt.Errorf("failed to lock tenant chain: %w", err)
	}

	var prevHash sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT hash FROM audit_ledger
		WHERE tenant_id = $1
		ORDER BY seq DESC
		LIMIT 1`, e.TenantID).Scan(&prevHash)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read chain head: %w", err)
	}
	e.PrevHash = prevHash.String
	e.Hash = ComputeHash(e)

	before, err := marshalSnapshot(e.Before)
	if err != nil {
		return err
	}
	after, err := marshalSnapshot(e.After)
	if err != nil {
		return err
	}
	sig, err := json.Marshal(e.Signature)
	if err != nil {
		return fmt.Errorf("failed to marshal signature: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_ledger (id, tenant_id, family, entity_id, action, actor_id, actor_name, actor_role,
			before_snapshot, after_snapshot, signature, request_id, origin, prev_hash, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		e.ID, e.TenantID, string(e.Family), e.EntityID, e.Action,
		e.ActorID, e.ActorName, e.ActorRole,
		before, after, sig, e.RequestID, e.Origin, e.PrevHash, e.Hash, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// HistoryFor retrieves a tenant's entries for one entity, newest first.
func (l *PostgresLedger) HistoryFor(ctx context.Context, tenantID string, ref entity.Ref, limit int) ([]*Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_ledger
		WHERE tenant_id = $1 AND family = $2 AND entity_id = $3
		ORDER BY seq DESC`, ledgerColumns)
	args := []any{tenantID, string(ref.Family), ref.ID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return l.query(ctx, query, args...)
}

// SignedActionsInRange retrieves a tenant's signed entries in [start, end],
// oldest first. Signed rows are those whose signature is not the canonical
// empty value.
func (l *PostgresLedger) SignedActionsInRange(ctx context.Context, tenantID string, start, end time.Time) ([]*Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_ledger
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at <= $3
			AND signature ->> 'actor_id' <> ''
		ORDER BY seq ASC`, ledgerColumns)

	return l.query(ctx, query, tenantID, start, end)
}

// AllForTenant returns every entry for a tenant, oldest first.
func (l *PostgresLedger) AllForTenant(ctx context.Context, tenantID string) ([]*Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_ledger
		WHERE tenant_id = $1
		ORDER BY seq ASC`, ledgerColumns)

	return l.query(ctx, query, tenantID)
}

func (l *PostgresLedger) query(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var results []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

func marshalSnapshot(e *entity.Entity) ([]byte, error) {
	if e == nil {
		return nil, nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return b, nil
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var (
		e         Entry
		family    string
		before    []byte
		after     []byte
		sig       []byte
		actorName sql.NullString
		requestID sql.NullString
		origin    sql.NullString
		prevHash  sql.NullString
	)
	err := rows.Scan(&e.ID, &e.TenantID, &family, &e.EntityID, &e.Action,
		&e.ActorID, &actorName, &e.ActorRole,
		&before, &after, &sig, &requestID, &origin, &prevHash, &e.Hash, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	e.Family = entity.Family(family)
	e.ActorName = actorName.String
	e.RequestID = requestID.String
	e.Origin = origin.String
	e.PrevHash = prevHash.String
	e.CreatedAt = e.CreatedAt.UTC()

	if len(before) > 0 {
		e.Before = &entity.Entity{}
		if err := json.Unmarshal(before, e.Before); err != nil {
			return nil, fmt.Errorf("failed to unmarshal before snapshot: %w", err)
		}
	}
	if len(after) > 0 {
		e.After = &entity.Entity{}
		if err := json.Unmarshal(after, e.After); err != nil {
			return nil, fmt.Errorf("failed to unmarshal after snapshot: %w", err)
		}
	}
	if len(sig) > 0 {
		if err := json.Unmarshal(sig, &e.Signature); err != nil {
			return nil, fmt.Errorf("failed to unmarshal signature: %w", err)
		}
	}
	return &e, nil
}

package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// tables maps each family to its table. One table per family; the schemas are
// identical but the separation keeps per-family indexes and retention simple.
var tables = map[Family]string{
	FamilyFault:       "faults",
	FamilyWorkOrder:   "work_orders",
	FamilyInventory:   "inventory_items",
	FamilyHandover:    "handovers",
	FamilyCertificate: "certificates",
}

// TableFor returns the table name for a family.
func TableFor(family Family) (string, error) {
	t, ok := tables[family]
	if !ok {
		return "", fmt.Errorf("no table for family %q", family)
	}
	return t, nil
}

const entityColumns = "id, tenant_id, status, refs, fields, created_by, updated_by, created_at, updated_at, deleted_at"

// querier abstracts *sql.DB and *sql.Tx for read paths.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresStore is the Postgres-backed read-side Store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgresStore on the given connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetByID retrieves one record scoped to the tenant. Cross-tenant ids return
// ErrNotFound, indistinguishable from absence.
func (s *PostgresStore) GetByID(ctx context.Context, tenantID string, family Family, id string) (*Entity, error) {
	return getEntity(ctx, s.db, tenantID, family, id, false)
}

// List retrieves records of one family, newest first.
func (s *PostgresStore) List(ctx context.Context, tenantID string, family Family, filter Filter) ([]*Entity, error) {
	table, err := TableFor(family)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE tenant_id = $1 AND deleted_at IS NULL`, entityColumns, table)
	args := []any{tenantID}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", family, err)
	}
	defer rows.Close()

	var results []*Entity
	for rows.Next() {
		e, err := scanEntity(rows, family)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// GetForUpdateTx re-reads a record inside a transaction with a row lock,
// used by the executor to guard the gate-to-commit window.
func GetForUpdateTx(ctx context.Context, tx *sql.Tx, tenantID string, family Family, id string) (*Entity, error) {
	return getEntity(ctx, tx, tenantID, family, id, true)
}

func getEntity(ctx context.Context, q querier, tenantID string, family Family, id string, forUpdate bool) (*Entity, error) {
	table, err := TableFor(family)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, entityColumns, table)
	if forUpdate {
		query += " FOR UPDATE"
	}

	row := q.QueryRowContext(ctx, query, id, tenantID)
	e, err := scanEntityRow(row, family)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", family, err)
	}
	return e, nil
}

// InsertTx writes a new record inside a transaction.
func InsertTx(ctx context.Context, tx *sql.Tx, e *Entity) error {
	table, err := TableFor(e.Family)
	if err != nil {
		return err
	}

	refs, err := json.Marshal(e.Refs)
	if err != nil {
		return fmt.Errorf("failed to marshal refs: %w", err)
	}
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, tenant_id, status, refs, fields, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, table)
	_, err = tx.ExecContext(ctx, query,
		e.ID, e.TenantID, string(e.Status), refs, fields,
		e.CreatedBy, e.UpdatedBy, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", e.Family, err)
	}
	return nil
}

// UpdateTx rewrites a record's mutable columns inside a transaction. The
// tenant predicate is part of the statement even though the row was already
// read under the same tenant, so no code path can widen the scope.
func UpdateTx(ctx context.Context, tx *sql.Tx, e *Entity) error {
	table, err := TableFor(e.Family)
	if err != nil {
		return err
	}

	refs, err := json.Marshal(e.Refs)
	if err != nil {
		return fmt.Errorf("failed to marshal refs: %w", err)
	}
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s SET status = $1, refs = $2, fields = $3, updated_by = $4, updated_at = $5
		WHERE id = $6 AND tenant_id = $7 AND deleted_at IS NULL`, table)
	res, err := tx.ExecContext(ctx, query,
		string(e.Status), refs, fields, e.UpdatedBy, e.UpdatedAt, e.ID, e.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", e.Family, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntityRow(row *sql.Row, family Family) (*Entity, error) {
	return scanEntityFrom(row, family)
}

func scanEntity(rows *sql.Rows, family Family) (*Entity, error) {
	return scanEntityFrom(rows, family)
}

func scanEntityFrom(s rowScanner, family Family) (*Entity, error) {
	var (
		e         Entity
		status    string
		refs      []byte
		fields    []byte
		deletedAt sql.NullTime
	)
	err := s.Scan(&e.ID, &e.TenantID, &status, &refs, &fields,
		&e.CreatedBy, &e.UpdatedBy, &e.CreatedAt, &e.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	e.Family = family
	e.Status = Status(status)
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &e.Refs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal refs: %w", err)
		}
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &e.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
		}
	}
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		e.DeletedAt = &t
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}


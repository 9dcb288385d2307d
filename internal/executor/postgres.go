package executor

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/lib/pq"

	"github.com/oceanworks/deckhand/internal/apperr"
	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/ledger"
	"github.com/oceanworks/deckhand/internal/state"
	"github.com/oceanworks/deckhand/internal/tracing"
)

// PostgresExecutor applies plans inside a single database transaction. The
// target row is re-read FOR UPDATE so concurrent executions of the same
// entity serialize at the row lock, and the ledger append shares the same
// transaction as the entity write.
type PostgresExecutor struct {
	db       *sql.DB
	machines *state.Machines
	logger   *slog.Logger
}

// NewPostgresExecutor creates an executor over a Postgres pool.
func NewPostgresExecutor(db *sql.DB, machines *state.Machines, logger *slog.Logger) *PostgresExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresExecutor{db: db, machines: machines, logger: logger}
}

// Execute applies one plan atomically. Any failure after BeginTx rolls the
// whole unit back, including a deadline expiring mid-transaction.
func (x *PostgresExecutor) Execute(ctx context.Context, plan Plan) (outcome *Outcome, err error) {
	table, tableErr := entity.TableFor(plan.Def.Family)
	if tableErr != nil {
		table = string(plan.Def.Family)
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, table, tracing.DBOperationExec)
	defer func() { endSpan(err) }()

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(ctx, err, "begin transaction")
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			x.logger.Error("rollback failed", "action", plan.Def.Name, "error", rbErr)
		}
	}()

	var out *Outcome
	if plan.Def.Creates {
		out, err = x.create(ctx, tx, plan)
	} else {
		out, err = x.transition(ctx, tx, plan)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(ctx, err, "commit transaction")
	}
	committed = true
	return out, nil
}

func (x *PostgresExecutor) create(ctx context.Context, tx *sql.Tx, plan Plan) (*Outcome, error) {
	m, err := x.machines.ForFamily(plan.Def.Family)
	if err != nil {
		return nil, apperr.Wrap("no machine for family", err)
	}

	if plan.CommitGuard != nil {
		if err := plan.CommitGuard(); err != nil {
			return nil, err
		}
	}

	fields := make(map[string]string, len(plan.Fields))
	for k, v := range plan.Fields {
		fields[k] = v
	}
	e := entity.New(plan.Def.Family, plan.Tenant.TenantID, m.Initial(), plan.Tenant.ActorID, fields)

	if err := entity.InsertTx(ctx, tx, e); err != nil {
		return nil, classifyPG(ctx, err, "insert entity")
	}
	entry := buildEntry(plan, nil, e)
	if err := ledger.AppendTx(ctx, tx, entry); err != nil {
		return nil, classifyPG(ctx, err, "append ledger entry")
	}
	return &Outcome{Entity: e, Entries: []*ledger.Entry{entry}}, nil
}

func (x *PostgresExecutor) transition(ctx context.Context, tx *sql.Tx, plan Plan) (*Outcome, error) {
	if plan.Target == nil {
		return nil, apperr.New(apperr.CodeUnexpected, "transition plan has no target")
	}

	// Row lock, then re-evaluate legality against the locked state. A
	// concurrent transaction that moved the entity first is observed here.
	current, err := entity.GetForUpdateTx(ctx, tx, plan.Tenant.TenantID, plan.Target.Family, plan.Target.ID)
	if err != nil {
		return nil, classifyPG(ctx, err, "load target")
	}

	m, err := x.machines.ForFamily(plan.Def.Family)
	if err != nil {
		return nil, apperr.Wrap("no machine for family", err)
	}
	result, next, err := m.Eval(current.Status, plan.Def.Name)
	if err != nil {
		return nil, apperr.Wrap("state evaluation failed", err)
	}
	switch result {
	case state.ResultNoOp:
		return &Outcome{Entity: current, NoOp: true}, nil
	case state.ResultIllegal:
		return nil, apperr.Newf(apperr.CodeIllegalTransition,
			"%s is not permitted while the %s is %s", plan.Def.Name, current.Family, current.Status)
	}

	if plan.CommitGuard != nil {
		if err := plan.CommitGuard(); err != nil {
			return nil, err
		}
	}

	before := current.Clone()
	updated := current
	updated.Status = next
	applyFields(updated, plan.Def, plan.Fields)
	updated.Touch(plan.Tenant.ActorID)

	var spawned *entity.Entity
	if plan.Def.Spawns != nil {
		spawned, err = spawnEntity(plan, x.machines, updated)
		if err != nil {
			return nil, err
		}
	}

	if err := entity.UpdateTx(ctx, tx, updated); err != nil {
		return nil, classifyPG(ctx, err, "update entity")
	}
	if spawned != nil {
		if err := entity.InsertTx(ctx, tx, spawned); err != nil {
			return nil, classifyPG(ctx, err, "insert spawned entity")
		}
	}

	entries := []*ledger.Entry{buildEntry(plan, before, updated)}
	if spawned != nil {
		entries = append(entries, buildEntry(plan, nil, spawned))
	}
	for _, entry := range entries {
		if err := ledger.AppendTx(ctx, tx, entry); err != nil {
			return nil, classifyPG(ctx, err, "append ledger entry")
		}
	}

	return &Outcome{Entity: updated, Spawned: spawned, Entries: entries}, nil
}

// classifyPG extends classify with Postgres driver errors: unique violations
// surface as conflicts instead of opaque unexpected failures.
func classifyPG(ctx context.Context, err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return apperr.New(apperr.CodeConflict, "a conflicting record already exists")
	}
	return classify(ctx, err, msg)
}

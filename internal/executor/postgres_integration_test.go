//go:build integration

// Integration tests for the Postgres-backed executor. These spin up a real
// postgres container, so Docker must be available.
//
// Run with: go test -tags=integration -v ./internal/executor/...
package executor_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/oceanworks/deckhand/internal/action"
	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/executor"
	"github.com/oceanworks/deckhand/internal/ledger"
	"github.com/oceanworks/deckhand/internal/state"
	"github.com/oceanworks/deckhand/internal/tenant"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("deckhand"),
		tcpostgres.WithUsername("deckhand"),
		tcpostgres.WithPassword("deckhand"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	dir := filepath.Join("..", "..", "migrations")
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		t.Fatalf("failed to list migrations: %v", err)
	}
	sort.Strings(files)
	for _, f := range files {
		stmt, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("failed to read migration %s: %v", f, err)
		}
		if _, err := db.Exec(string(stmt)); err != nil {
			t.Fatalf("failed to apply migration %s: %v", f, err)
		}
	}
	return db
}

func seedEntity(t *testing.T, db *sql.DB, e *entity.Entity) {
	t.Helper()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := entity.InsertTx(context.Background(), tx, e); err != nil {
		tx.Rollback()
		t.Fatalf("InsertTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

// Two transactions racing to close the same fault: the second one blocks on
// the row lock, re-evaluates legality against the committed state, and
// resolves to a no-op. Exactly one ledger row records the transition.
func TestPostgresExecutor_ConcurrentSameTarget(t *testing.T) {
	db := startPostgres(t)
	machines, err := state.NewMachines()
	if err != nil {
		t.Fatalf("NewMachines: %v", err)
	}
	registry, err := action.NewRegistry(machines)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	def, err := registry.Get("closeFault")
	if err != nil {
		t.Fatalf("Get(closeFault): %v", err)
	}

	fault := entity.New(entity.FamilyFault, "vessel-1", state.FaultResolved, "actor-seed", map[string]string{
		"title":       "steering gear alarm",
		"description": "low oil level alarm on steering gear pump 1",
	})
	seedEntity(t, db, fault)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := executor.NewPostgresExecutor(db, machines, logger)
	ctx := context.Background()

	plans := make([]executor.Plan, 2)
	for i, actorID := range []string{"actor-hod-1", "actor-hod-2"} {
		tc, err := tenant.New("vessel-1", actorID, "", []string{"hod"})
		if err != nil {
			t.Fatalf("tenant.New: %v", err)
		}
		target := fault.Ref()
		plans[i] = executor.Plan{
			Tenant: tc,
			Def:    def,
			Target: &target,
			Fields: map[string]string{"fault_id": fault.ID},
		}
	}

	outcomes := make([]*executor.Outcome, len(plans))
	errs := make([]error, len(plans))
	var wg sync.WaitGroup
	for i, plan := range plans {
		wg.Add(1)
		go func(idx int, plan executor.Plan) {
			defer wg.Done()
			outcomes[idx], errs[idx] = exec.Execute(ctx, plan)
		}(i, plan)
	}
	wg.Wait()

	transitions := 0
	for i, out := range outcomes {
		if errs[i] != nil {
			t.Fatalf("Execute %d error: %v", i, errs[i])
		}
		if out.Entity.Status != state.FaultClosed {
			t.Errorf("Execute %d entity status = %s, want closed", i, out.Entity.Status)
		}
		if !out.NoOp {
			transitions++
			if len(out.Entries) != 1 {
				t.Errorf("Execute %d wrote %d ledger entries, want 1", i, len(out.Entries))
			}
		} else if len(out.Entries) != 0 {
			t.Errorf("no-op Execute %d wrote %d ledger entries, want 0", i, len(out.Entries))
		}
	}
	if transitions != 1 {
		t.Errorf("transitions = %d, want exactly 1", transitions)
	}

	led := ledger.NewPostgresLedger(db)
	history, err := led.HistoryFor(ctx, "vessel-1", fault.Ref(), 0)
	if err != nil {
		t.Fatalf("HistoryFor: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("ledger rows = %d, want 1", len(history))
	}

	store := entity.NewPostgresStore(db)
	persisted, err := store.GetByID(ctx, "vessel-1", entity.FamilyFault, fault.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if persisted.Status != state.FaultClosed {
		t.Errorf("persisted status = %s, want closed", persisted.Status)
	}
}

package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-ingest/core"
	ingestmigrations "github.com/goliatone/go-ingest/migrations"
	sqlstore "github.com/goliatone/go-ingest/store/sql"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-ingest-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:ingest-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = ingestmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != ingestmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, ingestmigrations.WithValidationTargets(ingestmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, cleanup
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"ingest_events",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "ingest_events" {
		t.Fatalf("expected ingest_events table, got %q", tableName)
	}
}

func TestEventStoreClaimCommitReplay(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	store := factory.EventStore()
	eventIdentity := core.EventIdentity{Provider: "payproc", EventID: "evt_1"}
	input := core.ClaimInput{
		Identity:  eventIdentity,
		EventType: "charge.succeeded",
		Payload:   []byte(`{"id":"evt_1","type":"charge.succeeded"}`),
		Lease:     30 * time.Second,
	}

	first, err := store.Claim(ctx, input)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if first.Outcome != core.ClaimFresh || first.Record.AttemptCount != 1 {
		t.Fatalf("unexpected fresh claim %+v", first)
	}

	// A duplicate delivery while claimed does not get a second claim.
	second, err := store.Claim(ctx, input)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if second.Outcome != core.ClaimAlreadyClaimed {
		t.Fatalf("expected already_claimed, got %s", second.Outcome)
	}

	committed, err := store.Commit(ctx, eventIdentity, core.RecordStatusApplied,
		map[string]any{"plan_state": "paid"}, nil)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if committed.Status != core.RecordStatusApplied || committed.AppliedAt == nil {
		t.Fatalf("unexpected committed record %+v", committed)
	}

	replay, err := store.Claim(ctx, input)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if replay.Outcome != core.ClaimAlreadyApplied {
		t.Fatalf("expected already_applied, got %s", replay.Outcome)
	}
	if replay.Record.ResultSummary["plan_state"] != "paid" {
		t.Fatalf("expected stored summary, got %+v", replay.Record.ResultSummary)
	}

	// Terminal records cannot be committed again.
	if _, err := store.Commit(ctx, eventIdentity, core.RecordStatusFailed, nil, fmt.Errorf("late")); !errors.Is(err, core.ErrRecordNotClaimed) {
		t.Fatalf("expected not claimed, got %v", err)
	}
}

func TestEventStoreConcurrentClaimSingleWinner(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	store := factory.EventStore()
	input := core.ClaimInput{
		Identity:  core.EventIdentity{Provider: "payproc", EventID: "evt_race"},
		EventType: "charge.succeeded",
		Payload:   []byte(`{}`),
		Lease:     30 * time.Second,
	}

	var wg sync.WaitGroup
	outcomes := make(chan core.ClaimOutcome, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := store.Claim(ctx, input)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			outcomes <- result.Outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	fresh := 0
	for outcome := range outcomes {
		if outcome == core.ClaimFresh {
			fresh++
		}
	}
	if fresh != 1 {
		t.Fatalf("expected exactly one fresh claim, got %d", fresh)
	}
}

func TestEventStoreRedriveBatch(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	store := factory.EventStore().WithNow(func() time.Time { return clock })

	for i := 0; i < 3; i++ {
		_, err := store.Claim(ctx, core.ClaimInput{
			Identity:  core.EventIdentity{Provider: "payproc", EventID: fmt.Sprintf("evt_%d", i)},
			EventType: "charge.succeeded",
			Payload:   []byte(`{}`),
			Lease:     30 * time.Second,
		})
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
	}
	// One record is already terminal and must never be redriven.
	if _, err := store.Commit(ctx, core.EventIdentity{Provider: "payproc", EventID: "evt_2"},
		core.RecordStatusApplied, nil, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	clock = base.Add(time.Minute)
	batch, err := store.ClaimRedriveBatch(ctx, 10, clock, 30*time.Second)
	if err != nil {
		t.Fatalf("claim redrive batch: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 lapsed records, got %d", len(batch))
	}
	for _, record := range batch {
		if record.Status != core.RecordStatusClaimed {
			t.Fatalf("unexpected record %+v", record)
		}
	}

	// Re-leased records stay invisible until the new lease lapses.
	again, err := store.ClaimRedriveBatch(ctx, 10, clock, 30*time.Second)
	if err != nil {
		t.Fatalf("claim redrive batch: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no records, got %d", len(again))
	}
}

func TestEventStoreRecordAttemptAndListFailed(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	store := factory.EventStore()
	eventIdentity := core.EventIdentity{Provider: "payproc", EventID: "evt_1"}
	if _, err := store.Claim(ctx, core.ClaimInput{
		Identity:  eventIdentity,
		EventType: "charge.succeeded",
		Payload:   []byte(`{}`),
	}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	next := time.Now().UTC().Add(4 * time.Second)
	record, err := store.RecordAttempt(ctx, eventIdentity, fmt.Errorf("downstream timeout"), next)
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if record.AttemptCount != 2 || record.LastError != "downstream timeout" {
		t.Fatalf("unexpected record %+v", record)
	}

	if _, err := store.Commit(ctx, eventIdentity, core.RecordStatusFailed, nil, fmt.Errorf("gave up")); err != nil {
		t.Fatalf("commit: %v", err)
	}
	failed, err := store.ListFailed(ctx, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].Identity != eventIdentity {
		t.Fatalf("unexpected failed list %+v", failed)
	}
}

func TestSubscriptionStoreOptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	store := factory.SubscriptionStore()
	created, err := store.Create(ctx, core.CreateSubscriptionInput{
		ScopeID:   "acct_1",
		PlanState: core.PlanStateFree,
		PlanCode:  "free",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1, got %d", created.Version)
	}

	updated, err := store.UpdateState(ctx, created.ID, created.Version, core.PlanStatePaid, "pro-monthly")
	if err != nil {
		t.Fatalf("update state: %v", err)
	}
	if updated.PlanState != core.PlanStatePaid || updated.Version != 2 {
		t.Fatalf("unexpected subscription %+v", updated)
	}

	// A stale version must not land.
	if _, err := store.UpdateState(ctx, created.ID, created.Version, core.PlanStateFree, "free"); !errors.Is(err, core.ErrSubscriptionVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	// Invalid plan transitions are refused before touching the row.
	if _, err := store.UpdateState(ctx, created.ID, updated.Version, core.PlanState("trial"), ""); !errors.Is(err, core.ErrInvalidPlanStateTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrSubscriptionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAuthFailureStoreRecordsAndLists(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	sink := factory.AuthFailureSink()
	for i := 0; i < 3; i++ {
		err := sink.Record(ctx, core.AuthFailure{
			ProviderID: "payproc",
			Reason:     "signature verification failed",
			Signature:  fmt.Sprintf("sha256=bad_%d", i),
			BodyDigest: "digest",
			OccurredAt: time.Date(2026, 3, 1, 10, i, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	failures, err := sink.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(failures))
	}
	if failures[0].Signature != "sha256=bad_2" {
		t.Fatalf("expected newest first, got %+v", failures[0])
	}
}

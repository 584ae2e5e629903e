package journal

import (
	"context"
	"testing"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/queue"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	j, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN(config.JournalConfig{
		Host: "db.internal", Port: 3307, User: "sb", Password: "s3cret", Database: "switchboard",
	})
	mc, err := gomysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("ParseDSN(%q): %v", dsn, err)
	}
	if mc.Addr != "db.internal:3307" || mc.User != "sb" || mc.Passwd != "s3cret" || mc.DBName != "switchboard" {
		t.Errorf("parsed config = %+v", mc)
	}
	if !mc.ParseTime {
		t.Error("parseTime should be enabled")
	}
}

func TestOpen_Disabled(t *testing.T) {
	j, err := Open(config.JournalConfig{Driver: "none"})
	if err != nil || j != nil {
		t.Errorf("Open(none) = %v, %v", j, err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(config.JournalConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error")
	}
}

func TestOpen_SQLiteMemory(t *testing.T) {
	j, err := Open(config.JournalConfig{Driver: "sqlite"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()
	if err := j.Record(context.Background(), models.EscalationEvent{QueryID: "ESC-1", Type: models.EventEnqueued}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	evs, err := j.Recent(context.Background(), 10)
	if err != nil || len(evs) != 1 {
		t.Fatalf("Recent = %v, %v", evs, err)
	}
}

func TestObserve_JournalsQueueLifecycle(t *testing.T) {
	j := testJournal(t)
	q := queue.New(queue.WithObserver(j.Observe))

	id := q.Enqueue(models.EscalatedQuery{CustomerID: "c1", Query: "need a loan", Reason: models.ReasonPriceNegotiation, Priority: 3})
	if err := q.MarkAssigned(id, "agent_3"); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Resolve(id, "Offered 0% EMI"); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Close(id); err != nil {
		t.Fatal(err)
	}

	evs, err := j.ForQuery(context.Background(), id)
	if err != nil {
		t.Fatalf("ForQuery: %v", err)
	}
	wantTypes := []string{models.EventEnqueued, models.EventAssigned, models.EventResolved, models.EventClosed}
	if len(evs) != len(wantTypes) {
		t.Fatalf("got %d events, want %d", len(evs), len(wantTypes))
	}
	for i, want := range wantTypes {
		if evs[i].Type != want {
			t.Errorf("event %d type = %q, want %q", i, evs[i].Type, want)
		}
	}
	if evs[0].Detail != "need a loan" {
		t.Errorf("enqueued detail = %q", evs[0].Detail)
	}
	if evs[1].AgentID != "agent_3" {
		t.Errorf("assigned agent = %q", evs[1].AgentID)
	}
	if evs[2].Detail != "Offered 0% EMI" {
		t.Errorf("resolved detail = %q", evs[2].Detail)
	}
	if evs[0].Reason != "price_negotiation" || evs[0].Priority != 3 {
		t.Errorf("reason/priority = %q/%d", evs[0].Reason, evs[0].Priority)
	}
}

func TestRecent_NewestFirstWithLimit(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"ESC-1", "ESC-2", "ESC-3"} {
		ev := models.EscalationEvent{QueryID: id, Type: models.EventEnqueued, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := j.Record(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}
	evs, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 || evs[0].QueryID != "ESC-3" || evs[1].QueryID != "ESC-2" {
		t.Errorf("Recent = %+v", evs)
	}
}

func TestCountByType(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	now := time.Now()
	for _, ev := range []models.EscalationEvent{
		{QueryID: "old", Type: models.EventEnqueued, CreatedAt: now.Add(-48 * time.Hour)},
		{QueryID: "a", Type: models.EventEnqueued, CreatedAt: now.Add(-time.Hour)},
		{QueryID: "b", Type: models.EventEnqueued, CreatedAt: now.Add(-time.Hour)},
		{QueryID: "a", Type: models.EventAssigned, CreatedAt: now.Add(-time.Minute)},
		{QueryID: "a", AgentID: "agent_1", Type: models.EventNotifyFailed, CreatedAt: now},
	} {
		if err := j.Record(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}
	counts, err := j.CountByType(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if counts[models.EventEnqueued] != 2 || counts[models.EventAssigned] != 1 || counts[models.EventNotifyFailed] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestFromTransition_UnknownStatus(t *testing.T) {
	ev := FromTransition(queue.Transition{Query: models.EscalatedQuery{ID: "x"}, To: "archived"})
	if ev.Type != "archived" {
		t.Errorf("type = %q", ev.Type)
	}
}

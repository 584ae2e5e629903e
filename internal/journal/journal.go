// Package journal records escalation lifecycle events in a SQL table so
// operators can audit assignments after the in-memory queue is gone.
package journal

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/queue"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Journal appends and queries lifecycle events.
type Journal struct {
	db *gorm.DB
}

// MySQLDSN builds a go-sql-driver DSN from the journal settings.
func MySQLDSN(cfg config.JournalConfig) string {
	mc := gomysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	return mc.FormatDSN()
}

// Open connects to the configured backend and migrates the events table.
// It returns nil, nil when the journal is disabled.
func Open(cfg config.JournalConfig) (*Journal, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "mysql":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = MySQLDSN(cfg)
		}
		dialector = mysql.Open(dsn)
	case "sqlite", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("journal: connect %s: %w", cfg.Driver, err)
	}
	if cfg.Driver != "mysql" {
		// Each sqlite connection to :memory: is a separate database.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	return New(db)
}

// New wraps an open database and migrates the events table.
func New(db *gorm.DB) (*Journal, error) {
	if err := db.AutoMigrate(&models.EscalationEvent{}); err != nil {
		return nil, fmt.Errorf("journal: auto-migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record appends one event.
func (j *Journal) Record(ctx context.Context, ev models.EscalationEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if err := j.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return fmt.Errorf("journal: record %s %s: %w", ev.Type, ev.QueryID, err)
	}
	return nil
}

// Observe is a queue.Observer that journals each transition. Failures are
// logged; the queue never waits on the journal's health.
func (j *Journal) Observe(tr queue.Transition) {
	ev := FromTransition(tr)
	if err := j.Record(context.Background(), ev); err != nil {
		log.Printf("journal: %v", err)
	}
}

// FromTransition maps a queue transition to an event.
func FromTransition(tr queue.Transition) models.EscalationEvent {
	q := tr.Query
	ev := models.EscalationEvent{
		QueryID:  q.ID,
		AgentID:  q.AgentID,
		Reason:   string(q.Reason),
		Priority: q.Priority,
	}
	switch tr.To {
	case models.QueryPending:
		ev.Type = models.EventEnqueued
		ev.Detail = q.Query
		ev.CreatedAt = q.CreatedAt
	case models.QueryAssigned:
		ev.Type = models.EventAssigned
		ev.CreatedAt = deref(q.AssignedAt)
	case models.QueryResolved:
		ev.Type = models.EventResolved
		ev.Detail = q.Notes
		ev.CreatedAt = deref(q.ResolvedAt)
	case models.QueryClosed:
		ev.Type = models.EventClosed
		ev.CreatedAt = deref(q.ClosedAt)
	default:
		ev.Type = string(tr.To)
	}
	return ev
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]models.EscalationEvent, error) {
	var out []models.EscalationEvent
	if err := j.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	return out, nil
}

// ForQuery returns the history of one query, oldest first.
func (j *Journal) ForQuery(ctx context.Context, queryID string) ([]models.EscalationEvent, error) {
	var out []models.EscalationEvent
	if err := j.db.WithContext(ctx).Where("query_id = ?", queryID).Order("created_at, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal: query %s: %w", queryID, err)
	}
	return out, nil
}

// CountByType counts events of each type recorded at or after since.
func (j *Journal) CountByType(ctx context.Context, since time.Time) (map[string]int64, error) {
	var rows []struct {
		Type  string
		Count int64
	}
	err := j.db.WithContext(ctx).Model(&models.EscalationEvent{}).
		Select("type, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("journal: count by type: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Type] = r.Count
	}
	return out, nil
}

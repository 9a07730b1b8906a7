// Package journal persists committed fund events, oracle snapshots and
// idempotent command responses in a SQL database through gorm.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fundchain/core/events"
	"fundchain/services/fundd/oracle"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("journal: not found")

// Journal is the SQL-backed event and snapshot store.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq uint64
}

// Dialector picks the gorm driver for dsn: Postgres for postgres:// and
// postgresql:// URLs, SQLite otherwise.
func Dialector(dsn string) (gorm.Dialector, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("journal dsn required")
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return postgres.Open(trimmed), nil
	}
	return sqlite.Open(trimmed), nil
}

// Open connects to dsn and applies migrations.
func Open(dsn string, log *slog.Logger) (*Journal, error) {
	dialector, err := Dialector(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return New(db, log)
}

// New wraps an already migrated database handle.
func New(db *gorm.DB, log *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal database required")
	}
	if log == nil {
		log = slog.Default()
	}
	j := &Journal{db: db, logger: log, now: time.Now}
	var last EventRecord
	err := db.Order("seq desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("load journal sequence: %w", err)
	}
	j.seq = last.Seq
	return j, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Failures are logged; use Append when the
// caller needs the error.
func (j *Journal) Emit(evt events.Event) {
	if err := j.Append(context.Background(), evt); err != nil {
		j.logger.Error("journal append failed", "type", evt.EventType(), "error", err)
	}
}

// Append stores events in one transaction, preserving their order.
func (j *Journal) Append(ctx context.Context, evts ...events.Event) error {
	if j == nil || len(evts) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	rows := make([]EventRecord, 0, len(evts))
	seq := j.seq
	now := j.now().UTC()
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		row, err := toRecord(evt)
		if err != nil {
			return err
		}
		seq++
		row.ID = uuid.New()
		row.Seq = seq
		row.CreatedAt = now
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	if err := j.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert events: %w", err)
	}
	j.seq = seq
	return nil
}

func toRecord(evt events.Event) (EventRecord, error) {
	row := EventRecord{Type: evt.EventType()}
	rec, ok := evt.(*events.Record)
	if !ok || rec == nil {
		row.Attributes = "{}"
		return row, nil
	}
	row.Fund = rec.Attributes["fund"]
	raw, err := json.Marshal(rec.Attributes)
	if err != nil {
		return row, fmt.Errorf("encode attributes: %w", err)
	}
	row.Attributes = string(raw)
	return row, nil
}

// Query filters journal reads.
type Query struct {
	Fund     string
	Type     string
	AfterSeq uint64
	Limit    int
}

// Events returns matching events in sequence order.
func (j *Journal) Events(ctx context.Context, q Query) ([]EventRecord, error) {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	tx := j.db.WithContext(ctx).Model(&EventRecord{}).Where("seq > ?", q.AfterSeq)
	if q.Fund != "" {
		tx = tx.Where("fund = ?", q.Fund)
	}
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	var out []EventRecord
	if err := tx.Order("seq asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return out, nil
}

// RecordSnapshot implements oracle.Recorder.
func (j *Journal) RecordSnapshot(ctx context.Context, snap oracle.Snapshot) error {
	median := "0"
	if snap.Median != nil {
		median = snap.Median.Dec()
	}
	row := OracleSnapshot{
		ID:         uuid.New(),
		Pair:       snap.Pair.String(),
		Median:     median,
		Feeders:    strings.Join(snap.Feeders, ","),
		Digest:     snap.Digest,
		ObservedAt: snap.ObservedAt.UTC(),
		CreatedAt:  j.now().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot for pair.
func (j *Journal) LatestSnapshot(ctx context.Context, pair oracle.Pair) (OracleSnapshot, error) {
	var row OracleSnapshot
	err := j.db.WithContext(ctx).Where("pair = ?", pair.String()).Order("observed_at desc, created_at desc").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, ErrNotFound
	}
	if err != nil {
		return row, fmt.Errorf("query snapshot: %w", err)
	}
	return row, nil
}

// LookupResponse returns the cached response for (caller, key).
func (j *Journal) LookupResponse(ctx context.Context, caller, key string) (IdempotencyKey, error) {
	var row IdempotencyKey
	err := j.db.WithContext(ctx).Where("key = ? AND caller = ?", key, caller).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, ErrNotFound
	}
	if err != nil {
		return row, fmt.Errorf("query idempotency key: %w", err)
	}
	return row, nil
}

// SaveResponse caches a command response. An existing entry is kept.
func (j *Journal) SaveResponse(ctx context.Context, row IdempotencyKey) error {
	if row.RequestID == "" {
		row.RequestID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = j.now().UTC()
	}
	var existing int64
	if err := j.db.WithContext(ctx).Model(&IdempotencyKey{}).Where("key = ? AND caller = ?", row.Key, row.Caller).Count(&existing).Error; err != nil {
		return fmt.Errorf("query idempotency key: %w", err)
	}
	if existing > 0 {
		return nil
	}
	if err := j.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}
	return nil
}

package journal

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is a committed fund event.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex"`
	Fund       string    `gorm:"size:96;index"`
	Type       string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

// OracleSnapshot is one aggregated oracle median.
type OracleSnapshot struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Pair       string    `gorm:"size:192;index"`
	Median     string    `gorm:"size:96"`
	Feeders    string    `gorm:"size:512"`
	Digest     string    `gorm:"size:64"`
	ObservedAt time.Time
	CreatedAt  time.Time
}

// IdempotencyKey caches the response to a keyed command request.
type IdempotencyKey struct {
	Key       string `gorm:"primaryKey;size:128"`
	Caller    string `gorm:"primaryKey;size:96"`
	RequestID string `gorm:"size:64"`
	Method    string `gorm:"size:8"`
	Path      string `gorm:"size:255"`
	Status    int
	Response  string `gorm:"type:text"`
	CreatedAt time.Time
}

// AutoMigrate performs all schema migrations for the journal.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&EventRecord{},
		&OracleSnapshot{},
		&IdempotencyKey{},
	)
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"golang-mq-duplex/internal/domain"

	"github.com/google/uuid"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// dispatchRow is the persisted form of domain.Dispatch.
type dispatchRow struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Handler   string    `gorm:"index;not null"`
	RawQueue  string    `gorm:"not null"`
	Queue     string    `gorm:"index;not null"`
	Payload   []byte    `gorm:"type:jsonb"`
	CreatedAt time.Time `gorm:"index"`
}

func (dispatchRow) TableName() string { return "dispatches" }

// Journal implements ports.Journal using PostgreSQL.
type Journal struct {
	db *gorm.DB
}

// New opens a PostgreSQL connection and returns a Journal.
func New(dsn string) (*Journal, error) {
	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	return NewWithDB(db)
}

// NewWithDB wraps an existing gorm connection.
func NewWithDB(db *gorm.DB) (*Journal, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Journal{db: db}, nil
}

// Migrate creates or updates the dispatches table.
func (j *Journal) Migrate() error {
	if err := j.db.AutoMigrate(&dispatchRow{}); err != nil {
		return fmt.Errorf("migrate dispatches: %w", err)
	}
	return nil
}

// Close closes the underlying database connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record inserts a dispatch row.
func (j *Journal) Record(ctx context.Context, d domain.Dispatch) error {
	if err := j.db.WithContext(ctx).Create(toRow(d)).Error; err != nil {
		return fmt.Errorf("insert dispatch: %w", err)
	}
	return nil
}

// Recent returns up to limit dispatches, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]domain.Dispatch, error) {
	var rows []dispatchRow
	err := j.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}

	out := make([]domain.Dispatch, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}

func toRow(d domain.Dispatch) *dispatchRow {
	return &dispatchRow{
		ID:        d.ID,
		Handler:   d.Handler,
		RawQueue:  d.RawQueue,
		Queue:     d.Queue,
		Payload:   d.Payload,
		CreatedAt: d.CreatedAt,
	}
}

func fromRow(r dispatchRow) domain.Dispatch {
	return domain.Dispatch{
		ID:        r.ID,
		Handler:   r.Handler,
		RawQueue:  r.RawQueue,
		Queue:     r.Queue,
		Payload:   r.Payload,
		CreatedAt: r.CreatedAt,
	}
}

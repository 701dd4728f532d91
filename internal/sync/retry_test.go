package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/printhaus/backend/internal/domain"
	"gorm.io/gorm"
)

func TestIsRetryableTxError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil", err: nil, retryable: false},
		{name: "postgres serialization failure", err: errors.New("ERROR: could not serialize access due to concurrent update (SQLSTATE 40001)"), retryable: true},
		{name: "postgres deadlock", err: errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"), retryable: true},
		{name: "sqlite busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), retryable: true},
		{name: "sqlite table locked", err: errors.New("database table is locked"), retryable: true},
		{name: "constraint violation", err: errors.New("UNIQUE constraint failed: rooms.id"), retryable: false},
		{name: "record not found", err: gorm.ErrRecordNotFound, retryable: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRetryableTxError(tc.err); got != tc.retryable {
				t.Fatalf("isRetryableTxError(%v) = %v, want %v", tc.err, got, tc.retryable)
			}
		})
	}
}

func TestWithSerializableRetriesUntilSuccess(t *testing.T) {
	db := newTestDatabase(t)

	attempts := 0
	err := withSerializable(context.Background(), db, noOpLogger, 5, func(tx *gorm.DB) error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithSerializableStopsOnNonRetryableError(t *testing.T) {
	db := newTestDatabase(t)

	permanent := errors.New("UNIQUE constraint failed")
	attempts := 0
	err := withSerializable(context.Background(), db, noOpLogger, 5, func(tx *gorm.DB) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected single attempt, got %d", attempts)
	}
}

func TestWithSerializableSerializesConcurrentWriters(t *testing.T) {
	db := newTestDatabase(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access connection pool: %v", err)
	}
	// Same connection model as production: one writer, contention queues.
	sqlDB.SetMaxOpenConns(1)

	mustCreate(t, db, &domain.Room{
		ID:         "room-1",
		TenantID:   "tenant-a",
		Name:       "Main Hall",
		Status:     domain.PublishStatusPublished,
		RowVersion: 1,
	})

	const writers = 8
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			results <- withSerializable(context.Background(), db, noOpLogger, 5, func(tx *gorm.DB) error {
				var room domain.Room
				if err := tx.Where("tenant_id = ? AND id = ?", "tenant-a", "room-1").
					Take(&room).Error; err != nil {
					return err
				}
				return tx.Model(&domain.Room{}).
					Where("tenant_id = ? AND id = ?", "tenant-a", "room-1").
					Update("row_version", room.RowVersion+1).Error
			})
		}()
	}
	for i := 0; i < writers; i++ {
		if err := <-results; err != nil {
			t.Fatalf("concurrent transaction failed: %v", err)
		}
	}

	var stored domain.Room
	if err := db.Where("tenant_id = ? AND id = ?", "tenant-a", "room-1").Take(&stored).Error; err != nil {
		t.Fatalf("failed to reload room: %v", err)
	}
	// Every read-modify-write must have observed the previous commit.
	if stored.RowVersion != 1+writers {
		t.Fatalf("expected row version %d after %d writers, got %d", 1+writers, writers, stored.RowVersion)
	}
}

func TestWithSerializableExhaustsAttempts(t *testing.T) {
	db := newTestDatabase(t)

	attempts := 0
	err := withSerializable(context.Background(), db, noOpLogger, 3, func(tx *gorm.DB) error {
		attempts++
		return errors.New("could not serialize access")
	})
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

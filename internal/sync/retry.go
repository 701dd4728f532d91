package sync

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultMaxTxAttempts bounds how often a serializable transaction is retried
// before the failure escalates to an internal error.
const DefaultMaxTxAttempts = 5

// retryableClasses match serialization failures and deadlocks across the
// stores GORM fronts: Postgres SQLSTATE 40001/40P01 and SQLite busy/locked.
var retryableClasses = []string{
	"SQLSTATE 40001",
	"SQLSTATE 40P01",
	"could not serialize access",
	"deadlock detected",
	"database is locked",
	"database table is locked",
}

func isRetryableTxError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	for _, class := range retryableClasses {
		if strings.Contains(message, class) {
			return true
		}
	}
	return false
}

// withSerializable runs work inside a transaction at serializable isolation,
// retrying only serialization-failure and deadlock classes. Every other error
// is returned immediately. Exhausting attempts surfaces ErrRetryExhausted.
func withSerializable(ctx context.Context, db *gorm.DB, logger *zap.Logger, maxAttempts int, work func(tx *gorm.DB) error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxTxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return work(tx)
		}, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err == nil {
			return nil
		}
		if !isRetryableTxError(err) {
			return err
		}
		lastErr = err
		if logger != nil {
			logger.Warn("retrying serializable transaction",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Error(err))
		}
	}

	return fmt.Errorf("%w: %v", ErrRetryExhausted, lastErr)
}

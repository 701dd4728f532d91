package domain

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Every mutating write goes through these helpers so that no code path can
// touch a row without advancing its version. Row versions are assigned by the
// store, never by the client.

func createRow(tx *gorm.DB, model interface{}) error {
	return tx.Create(model).Error
}

// versionedUpdate applies updates to one tenant-scoped row and bumps its
// row_version in the same statement. A zero-row match reports ErrRowNotFound.
func versionedUpdate(tx *gorm.DB, model interface{}, tenantID, id string, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["row_version"] = gorm.Expr("row_version + 1")

	result := tx.Model(model).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %T %s", ErrRowNotFound, model, id)
	}
	return nil
}

// softDelete marks the row deleted. Deletion is a version-bumping write, so it
// propagates through the same diff mechanism as any other change.
func softDelete(tx *gorm.DB, model interface{}, tenantID, id string, at time.Time) error {
	return versionedUpdate(tx, model, tenantID, id, map[string]interface{}{
		"deleted_at": at.UTC(),
	})
}

func restoreRow(tx *gorm.DB, model interface{}, tenantID, id string) error {
	return versionedUpdate(tx, model, tenantID, id, map[string]interface{}{
		"deleted_at": nil,
	})
}

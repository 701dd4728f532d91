package sync

import (
	"time"

	"github.com/printhaus/backend/internal/domain"
	"gorm.io/gorm"
)

// ClientGroup is the set of local replicas (tabs, devices) sharing one sync
// identity for a user. cvrVersion advances once per successful non-empty pull.
type ClientGroup struct {
	ID         string    `gorm:"column:id;primaryKey;size:190;not null"`
	TenantID   string    `gorm:"column:tenant_id;primaryKey;size:190;not null"`
	UserID     string    `gorm:"column:user_id;size:190;not null;index:idx_client_groups_user"`
	CvrVersion int64     `gorm:"column:cvr_version;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (ClientGroup) TableName() string {
	return "replicache_client_groups"
}

// Client tracks the highest mutation id durably applied for one replica.
type Client struct {
	ID             string    `gorm:"column:id;primaryKey;size:190;not null"`
	TenantID       string    `gorm:"column:tenant_id;primaryKey;size:190;not null"`
	ClientGroupID  string    `gorm:"column:client_group_id;size:190;not null;index:idx_clients_group"`
	LastMutationID int64     `gorm:"column:last_mutation_id;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Client) TableName() string {
	return "replicache_clients"
}

// ClientView is one immutable CVR snapshot, keyed by (clientGroupId, version).
// A new snapshot is always inserted, never mutated in place.
type ClientView struct {
	ClientGroupID string    `gorm:"column:client_group_id;primaryKey;size:190;not null"`
	Version       int64     `gorm:"column:version;primaryKey;not null"`
	TenantID      string    `gorm:"column:tenant_id;primaryKey;size:190;not null"`
	Record        string    `gorm:"column:record;type:text;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (ClientView) TableName() string {
	return "replicache_client_views"
}

// Models returns the sync bookkeeping models for schema migration.
func Models() []interface{} {
	return []interface{}{&ClientGroup{}, &Client{}, &ClientView{}}
}

// visibleClients reads the id/lastMutationId pairs for every client in the
// group. lastMutationId plays the part of a row version in the client
// pseudo-domain of the CVR.
func visibleClients(tx *gorm.DB, tenantID, clientGroupID string) ([]domain.Metadata, error) {
	var out []domain.Metadata
	err := tx.Table("replicache_clients").
		Select("id, last_mutation_id AS row_version").
		Where("tenant_id = ? AND client_group_id = ?", tenantID, clientGroupID).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

package domain

import (
	"fmt"

	"github.com/printhaus/backend/internal/auth"
	"gorm.io/gorm"
)

// Metadata is the id/version pair the CVR model is built from.
type Metadata struct {
	ID         string
	RowVersion int64
}

// roleQueries must be total over the closed role set. queryAsRole refuses to
// default an unhandled role to an empty result.
type roleQueries struct {
	administrator func() ([]Metadata, error)
	operator      func() ([]Metadata, error)
	manager       func() ([]Metadata, error)
	customer      func() ([]Metadata, error)
}

func queryAsRole(role auth.Role, queries roleQueries) ([]Metadata, error) {
	switch role {
	case auth.RoleAdministrator:
		return queries.administrator()
	case auth.RoleOperator:
		return queries.operator()
	case auth.RoleManager:
		return queries.manager()
	case auth.RoleCustomer:
		return queries.customer()
	default:
		return nil, fmt.Errorf("%w: %q", auth.ErrUnknownRole, role)
	}
}

// VisibleMetadata returns the id/version set the actor is allowed to see for
// one domain. Every query is predicated on the actor's tenant; cross-tenant
// leakage here is a correctness bug, not a style issue.
func VisibleMetadata(tx *gorm.DB, name Domain, actor auth.Actor) ([]Metadata, error) {
	switch name {
	case DomainAnnouncements:
		return visibleAnnouncements(tx, actor)
	case DomainComments:
		return visibleComments(tx, actor)
	case DomainOrders:
		return visibleOrders(tx, actor)
	case DomainProducts:
		return visiblePublishable(tx, Product{}.TableName(), actor)
	case DomainRooms:
		return visiblePublishable(tx, Room{}.TableName(), actor)
	case DomainRoomManagerAuthorizations:
		return visibleRoomManagerAuthorizations(tx, actor)
	case DomainUsers:
		return visibleUsers(tx, actor)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, name)
	}
}

func scanMetadata(query *gorm.DB) ([]Metadata, error) {
	var out []Metadata
	if err := query.Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func metadataTable(tx *gorm.DB, table string) *gorm.DB {
	return tx.Table(table).Select(table + ".id, " + table + ".row_version")
}

func visibleAnnouncements(tx *gorm.DB, actor auth.Actor) ([]Metadata, error) {
	all := func() ([]Metadata, error) {
		return scanMetadata(metadataTable(tx, "announcements").
			Where("tenant_id = ?", actor.TenantID))
	}
	live := func() ([]Metadata, error) {
		return scanMetadata(metadataTable(tx, "announcements").
			Where("tenant_id = ? AND deleted_at IS NULL", actor.TenantID))
	}
	return queryAsRole(actor.Role, roleQueries{
		administrator: all,
		operator:      live,
		manager:       live,
		customer:      live,
	})
}

// visiblePublishable covers rooms and products: restricted roles only see
// published, non-deleted rows.
func visiblePublishable(tx *gorm.DB, table string, actor auth.Actor) ([]Metadata, error) {
	published := func() ([]Metadata, error) {
		return scanMetadata(metadataTable(tx, table).
			Where("tenant_id = ? AND status = ? AND deleted_at IS NULL",
				actor.TenantID, PublishStatusPublished))
	}
	return queryAsRole(actor.Role, roleQueries{
		administrator: func() ([]Metadata, error) {
			return scanMetadata(metadataTable(tx, table).
				Where("tenant_id = ?", actor.TenantID))
		},
		operator: func() ([]Metadata, error) {
			return scanMetadata(metadataTable(tx, table).
				Where("tenant_id = ? AND deleted_at IS NULL", actor.TenantID))
		},
		manager:  published,
		customer: published,
	})
}

func visibleOrders(tx *gorm.DB, actor auth.Actor) ([]Metadata, error) {
	own := func() ([]Metadata, error) {
		return scanMetadata(metadataTable(tx, "orders").
			Where("tenant_id = ? AND customer_id = ? AND deleted_at IS NULL",
				actor.TenantID, actor.UserID))
	}
	return queryAsRole(actor.Role, roleQueries{
		administrator: func() ([]Metadata, error) {
			return scanMetadata(metadataTable(tx, "orders").
				Where("tenant_id = ?", actor.TenantID))
		},
		operator: func() ([]Metadata, error) {
			return scanMetadata(metadataTable(tx, "orders").
				Where("tenant_id = ? AND deleted_at IS NULL", actor.TenantID))
		},
		manager: func() ([]Metadata, error) {
			return scanMetadata(tx.Table("orders").
				Select("DISTINCT orders.id, orders.row_version").
				Joins("LEFT JOIN room_manager_authorizations rma ON rma.room_id = orders.room_id AND rma.tenant_id = orders.tenant_id AND rma.manager_id = ? AND rma.deleted_at IS NULL", actor.UserID).
				Where("orders.tenant_id = ? AND orders.deleted_at IS NULL AND (orders.customer_id = ? OR rma.id IS NOT NULL)",
					actor.TenantID, actor.UserID))
		},
		customer: own,
	})
}

func visibleComments(tx *gorm.DB, actor auth.Actor) ([]Metadata, error) {
	return queryAsRole(actor.Role, roleQueries{
		administrator: func() ([]Metadata, error) {
			return scanMetadata(metadataTable(tx, "comments").
				Where("tenant_id = ?", actor.TenantID))
		},
		operator: func() ([]Metadata, error) {
			return scanMetadata(metadataTable(tx, "comments").
				Where("tenant_id = ? AND deleted_at IS NULL", actor.TenantID))
		},
		manager: func() ([]Metadata, error) {
			return scanMetadata(tx.Table("comments").
				Select("DISTINCT comments.id, comments.row_version").
				Joins("JOIN orders ON orders.id = comments.order_id AND orders.tenant_id = comments.tenant_id AND orders.deleted_at IS NULL").
				Joins("LEFT JOIN room_manager_authorizations rma ON rma.room_id = orders.room_id AND rma.tenant_id = orders.tenant_id AND rma.manager_id = ? AND rma.deleted_at IS NULL", actor.UserID).
				Where("comments.tenant_id = ? AND comments.internal = ? AND comments.deleted_at IS NULL AND (orders.customer_id = ? OR rma.id IS NOT NULL)",
					actor.TenantID, false, actor.UserID))
		},
		customer: func() ([]Metadata, error) {
			return scanMetadata(tx.Table("comments").
				Select("comments.id, comments.row_version").
				Joins("JOIN orders ON orders.id = comments.order_id AND orders.tenant_id = comments.tenant_id AND orders.deleted_at IS NULL").
				Where("comments.tenant_id = ? AND comments.internal = ? AND comments.deleted_at IS NULL AND orders.customer_id = ?",
					actor.TenantID, false, actor.UserID))
		},
	})
}

func visibleRoomManagerAuthorizations(tx *gorm.DB, actor auth.Actor) ([]Metadata, error) {
	return queryAsRole(actor.Role, roleQueries{
		administrator: func() ([]Metadata, error) {
			return scanMetadata(metadataTable(tx, "room_manager_authorizations").
				Where("tenant_id = ?", actor.TenantID))
		},
		operator: func() ([]Metadata, error) {
			return scanMetadata(metadataTable(tx, "room_manager_authorizations").
				Where("tenant_id = ? AND deleted_at IS NULL", actor.TenantID))
		},
		manager: func() ([]Metadata, error) {
			return scanMetadata(metadataTable(tx, "room_manager_authorizations").
				Where("tenant_id = ? AND manager_id = ? AND deleted_at IS NULL",
					actor.TenantID, actor.UserID))
		},
		customer: func() ([]Metadata, error) {
			return []Metadata{}, nil
		},
	})
}

func visibleUsers(tx *gorm.DB, actor auth.Actor) ([]Metadata, error) {
	self := func() ([]Metadata, error) {
		return scanMetadata(metadataTable(tx, "users").
			Where("tenant_id = ? AND id = ?", actor.TenantID, actor.UserID))
	}
	return queryAsRole(actor.Role, roleQueries{
		administrator: func() ([]Metadata, error) {
			return scanMetadata(metadataTable(tx, "users").
				Where("tenant_id = ?", actor.TenantID))
		},
		operator: func() ([]Metadata, error) {
			return scanMetadata(metadataTable(tx, "users").
				Where("tenant_id = ? AND deleted_at IS NULL", actor.TenantID))
		},
		manager: func() ([]Metadata, error) {
			return scanMetadata(tx.Table("users").
				Select("DISTINCT users.id, users.row_version").
				Joins("LEFT JOIN orders ON orders.customer_id = users.id AND orders.tenant_id = users.tenant_id AND orders.deleted_at IS NULL").
				Joins("LEFT JOIN room_manager_authorizations rma ON rma.room_id = orders.room_id AND rma.tenant_id = orders.tenant_id AND rma.manager_id = ? AND rma.deleted_at IS NULL", actor.UserID).
				Where("users.tenant_id = ? AND users.deleted_at IS NULL AND (users.id = ? OR rma.id IS NOT NULL)",
					actor.TenantID, actor.UserID))
		},
		customer: self,
	})
}

// Row pairs a row id with its full payload for put patch operations.
type Row struct {
	ID    string
	Value interface{}
}

// LoadRows reads full row contents for the given ids. Only ids on a diff's
// puts list are ever loaded; deletes travel as bare ids.
func LoadRows(tx *gorm.DB, name Domain, tenantID string, ids []string) ([]Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	scoped := func(dest interface{}) error {
		return tx.Where("tenant_id = ? AND id IN ?", tenantID, ids).Find(dest).Error
	}

	switch name {
	case DomainAnnouncements:
		var rows []Announcement
		if err := scoped(&rows); err != nil {
			return nil, err
		}
		out := make([]Row, 0, len(rows))
		for _, row := range rows {
			out = append(out, Row{ID: row.ID, Value: row})
		}
		return out, nil
	case DomainComments:
		var rows []Comment
		if err := scoped(&rows); err != nil {
			return nil, err
		}
		out := make([]Row, 0, len(rows))
		for _, row := range rows {
			out = append(out, Row{ID: row.ID, Value: row})
		}
		return out, nil
	case DomainOrders:
		var rows []Order
		if err := scoped(&rows); err != nil {
			return nil, err
		}
		out := make([]Row, 0, len(rows))
		for _, row := range rows {
			out = append(out, Row{ID: row.ID, Value: row})
		}
		return out, nil
	case DomainProducts:
		var rows []Product
		if err := scoped(&rows); err != nil {
			return nil, err
		}
		out := make([]Row, 0, len(rows))
		for _, row := range rows {
			out = append(out, Row{ID: row.ID, Value: row})
		}
		return out, nil
	case DomainRooms:
		var rows []Room
		if err := scoped(&rows); err != nil {
			return nil, err
		}
		out := make([]Row, 0, len(rows))
		for _, row := range rows {
			out = append(out, Row{ID: row.ID, Value: row})
		}
		return out, nil
	case DomainRoomManagerAuthorizations:
		var rows []RoomManagerAuthorization
		if err := scoped(&rows); err != nil {
			return nil, err
		}
		out := make([]Row, 0, len(rows))
		for _, row := range rows {
			out = append(out, Row{ID: row.ID, Value: row})
		}
		return out, nil
	case DomainUsers:
		var rows []User
		if err := scoped(&rows); err != nil {
			return nil, err
		}
		out := make([]Row, 0, len(rows))
		for _, row := range rows {
			out = append(out, Row{ID: row.ID, Value: row})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, name)
	}
}

package domain

import (
	"errors"
	"time"
)

// PublishStatus gates restricted-role visibility of rooms and products.
type PublishStatus string

const (
	PublishStatusDraft     PublishStatus = "draft"
	PublishStatusPublished PublishStatus = "published"
)

// Domain names every synced table as it appears in patch keys and CVR records.
type Domain string

const (
	DomainAnnouncements              Domain = "announcements"
	DomainComments                   Domain = "comments"
	DomainOrders                     Domain = "orders"
	DomainProducts                   Domain = "products"
	DomainRooms                      Domain = "rooms"
	DomainRoomManagerAuthorizations  Domain = "roomManagerAuthorizations"
	DomainUsers                      Domain = "users"
)

// SyncedDomains lists every domain the pull protocol reconciles, in the order
// metadata is gathered. Ordering is cosmetic; patch application is atomic.
func SyncedDomains() []Domain {
	return []Domain{
		DomainAnnouncements,
		DomainComments,
		DomainOrders,
		DomainProducts,
		DomainRooms,
		DomainRoomManagerAuthorizations,
		DomainUsers,
	}
}

// ErrUnknownDomain indicates a domain name outside SyncedDomains. It is a
// deployment/version mismatch, not a recoverable request error.
var ErrUnknownDomain = errors.New("domain: unknown domain")

// ErrRowNotFound indicates an update or delete addressed a row that does not
// exist within the actor's tenant.
var ErrRowNotFound = errors.New("domain: row not found")

// Announcement is a tenant-wide notice, optionally pinned to a room.
type Announcement struct {
	ID         string     `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	TenantID   string     `gorm:"column:tenant_id;primaryKey;size:190;not null" json:"tenantId"`
	RoomID     string     `gorm:"column:room_id;size:190" json:"roomId"`
	Content    string     `gorm:"column:content;type:text;not null" json:"content"`
	RowVersion int64      `gorm:"column:row_version;not null;default:1" json:"rowVersion"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
	DeletedAt  *time.Time `gorm:"column:deleted_at" json:"deletedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Announcement) TableName() string {
	return "announcements"
}

// Room is a print room clients submit orders to.
type Room struct {
	ID         string        `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	TenantID   string        `gorm:"column:tenant_id;primaryKey;size:190;not null" json:"tenantId"`
	Name       string        `gorm:"column:name;size:320;not null" json:"name"`
	Status     PublishStatus `gorm:"column:status;size:32;not null;default:draft" json:"status"`
	Details    string        `gorm:"column:details;type:text" json:"details"`
	RowVersion int64         `gorm:"column:row_version;not null;default:1" json:"rowVersion"`
	CreatedAt  time.Time     `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time     `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
	DeletedAt  *time.Time    `gorm:"column:deleted_at" json:"deletedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Room) TableName() string {
	return "rooms"
}

// Product is an orderable item offered within a room.
type Product struct {
	ID         string        `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	TenantID   string        `gorm:"column:tenant_id;primaryKey;size:190;not null" json:"tenantId"`
	RoomID     string        `gorm:"column:room_id;size:190;not null;index:idx_products_room" json:"roomId"`
	Name       string        `gorm:"column:name;size:320;not null" json:"name"`
	Status     PublishStatus `gorm:"column:status;size:32;not null;default:draft" json:"status"`
	RowVersion int64         `gorm:"column:row_version;not null;default:1" json:"rowVersion"`
	CreatedAt  time.Time     `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time     `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
	DeletedAt  *time.Time    `gorm:"column:deleted_at" json:"deletedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Product) TableName() string {
	return "products"
}

// Order is a customer-submitted print job.
type Order struct {
	ID         string     `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	TenantID   string     `gorm:"column:tenant_id;primaryKey;size:190;not null" json:"tenantId"`
	CustomerID string     `gorm:"column:customer_id;size:190;not null;index:idx_orders_customer" json:"customerId"`
	RoomID     string     `gorm:"column:room_id;size:190;not null;index:idx_orders_room" json:"roomId"`
	ProductID  string     `gorm:"column:product_id;size:190;not null" json:"productId"`
	Notes      string     `gorm:"column:notes;type:text" json:"notes"`
	RowVersion int64      `gorm:"column:row_version;not null;default:1" json:"rowVersion"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
	DeletedAt  *time.Time `gorm:"column:deleted_at" json:"deletedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Order) TableName() string {
	return "orders"
}

// Comment is discussion attached to an order. Internal comments are only
// visible to administrators and operators.
type Comment struct {
	ID         string     `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	TenantID   string     `gorm:"column:tenant_id;primaryKey;size:190;not null" json:"tenantId"`
	OrderID    string     `gorm:"column:order_id;size:190;not null;index:idx_comments_order" json:"orderId"`
	AuthorID   string     `gorm:"column:author_id;size:190;not null" json:"authorId"`
	Content    string     `gorm:"column:content;type:text;not null" json:"content"`
	Internal   bool       `gorm:"column:internal;not null;default:false" json:"internal"`
	RowVersion int64      `gorm:"column:row_version;not null;default:1" json:"rowVersion"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
	DeletedAt  *time.Time `gorm:"column:deleted_at" json:"deletedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

// RoomManagerAuthorization grants a manager oversight of one room's orders.
type RoomManagerAuthorization struct {
	ID         string     `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	TenantID   string     `gorm:"column:tenant_id;primaryKey;size:190;not null" json:"tenantId"`
	RoomID     string     `gorm:"column:room_id;size:190;not null;index:idx_room_manager_auth_room" json:"roomId"`
	ManagerID  string     `gorm:"column:manager_id;size:190;not null;index:idx_room_manager_auth_manager" json:"managerId"`
	RowVersion int64      `gorm:"column:row_version;not null;default:1" json:"rowVersion"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
	DeletedAt  *time.Time `gorm:"column:deleted_at" json:"deletedAt"`
}

// TableName provides the explicit table binding for GORM.
func (RoomManagerAuthorization) TableName() string {
	return "room_manager_authorizations"
}

// User is a tenant member. Role changes and soft deletion flow through the
// same versioned write path as every other domain row.
type User struct {
	ID         string     `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	TenantID   string     `gorm:"column:tenant_id;primaryKey;size:190;not null" json:"tenantId"`
	Name       string     `gorm:"column:name;size:320;not null" json:"name"`
	Email      string     `gorm:"column:email;size:320;not null" json:"email"`
	Role       string     `gorm:"column:role;size:32;not null" json:"role"`
	RowVersion int64      `gorm:"column:row_version;not null;default:1" json:"rowVersion"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
	DeletedAt  *time.Time `gorm:"column:deleted_at" json:"deletedAt"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// Models returns every domain model for schema migration.
func Models() []interface{} {
	return []interface{}{
		&Announcement{},
		&Comment{},
		&Order{},
		&Product{},
		&Room{},
		&RoomManagerAuthorization{},
		&User{},
	}
}

package domain

import (
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/printhaus/backend/internal/auth"
	"gorm.io/gorm"
)

func newVisibilityDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:printhaus_domain_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func seedRow(t *testing.T, db *gorm.DB, row interface{}) {
	t.Helper()
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("failed to seed row %#v: %v", row, err)
	}
}

func deletedAt() *time.Time {
	at := time.Unix(1750000000, 0).UTC()
	return &at
}

// seedTenant builds the shared fixture: two rooms (one draft), a deleted
// room, orders by two customers, an internal comment, and a manager
// authorized for room-1 only. Tenant-b rows exist as cross-tenant noise.
func seedTenant(t *testing.T, db *gorm.DB) {
	t.Helper()

	seedRow(t, db, &Room{ID: "room-1", TenantID: "tenant-a", Name: "Main", Status: PublishStatusPublished, RowVersion: 1})
	seedRow(t, db, &Room{ID: "room-2", TenantID: "tenant-a", Name: "Draft", Status: PublishStatusDraft, RowVersion: 1})
	seedRow(t, db, &Room{ID: "room-3", TenantID: "tenant-a", Name: "Gone", Status: PublishStatusPublished, RowVersion: 2, DeletedAt: deletedAt()})

	seedRow(t, db, &Order{ID: "order-1", TenantID: "tenant-a", CustomerID: "customer-1", RoomID: "room-1", ProductID: "product-1", RowVersion: 1})
	seedRow(t, db, &Order{ID: "order-2", TenantID: "tenant-a", CustomerID: "customer-2", RoomID: "room-2", ProductID: "product-2", RowVersion: 1})

	seedRow(t, db, &Comment{ID: "comment-1", TenantID: "tenant-a", OrderID: "order-1", AuthorID: "operator-1", Content: "public", RowVersion: 1})
	seedRow(t, db, &Comment{ID: "comment-2", TenantID: "tenant-a", OrderID: "order-1", AuthorID: "operator-1", Content: "staff only", Internal: true, RowVersion: 1})

	seedRow(t, db, &RoomManagerAuthorization{ID: "rma-1", TenantID: "tenant-a", RoomID: "room-1", ManagerID: "manager-1", RowVersion: 1})

	seedRow(t, db, &User{ID: "manager-1", TenantID: "tenant-a", Name: "Mori", Email: "mori@example.com", Role: "manager", RowVersion: 1})
	seedRow(t, db, &User{ID: "customer-1", TenantID: "tenant-a", Name: "Cass", Email: "cass@example.com", Role: "customer", RowVersion: 1})
	seedRow(t, db, &User{ID: "customer-2", TenantID: "tenant-a", Name: "Kim", Email: "kim@example.com", Role: "customer", RowVersion: 1})

	seedRow(t, db, &Room{ID: "room-x", TenantID: "tenant-b", Name: "Other", Status: PublishStatusPublished, RowVersion: 1})
	seedRow(t, db, &Order{ID: "order-x", TenantID: "tenant-b", CustomerID: "customer-1", RoomID: "room-x", ProductID: "product-x", RowVersion: 1})
}

func visibleIDs(t *testing.T, db *gorm.DB, name Domain, actor auth.Actor) []string {
	t.Helper()
	metadata, err := VisibleMetadata(db, name, actor)
	if err != nil {
		t.Fatalf("unexpected visibility error for %s as %s: %v", name, actor.Role, err)
	}
	ids := make([]string, 0, len(metadata))
	for _, m := range metadata {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids
}

func assertIDs(t *testing.T, got []string, want ...string) {
	t.Helper()
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("expected ids %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected ids %v, got %v", want, got)
		}
	}
}

func TestRoomVisibilityByRole(t *testing.T) {
	db := newVisibilityDatabase(t)
	seedTenant(t, db)

	admin := auth.Actor{UserID: "admin-1", TenantID: "tenant-a", Role: auth.RoleAdministrator}
	operator := auth.Actor{UserID: "operator-1", TenantID: "tenant-a", Role: auth.RoleOperator}
	customer := auth.Actor{UserID: "customer-1", TenantID: "tenant-a", Role: auth.RoleCustomer}

	assertIDs(t, visibleIDs(t, db, DomainRooms, admin), "room-1", "room-2", "room-3")
	assertIDs(t, visibleIDs(t, db, DomainRooms, operator), "room-1", "room-2")
	assertIDs(t, visibleIDs(t, db, DomainRooms, customer), "room-1")
}

func TestOrderVisibilityByRole(t *testing.T) {
	db := newVisibilityDatabase(t)
	seedTenant(t, db)

	operator := auth.Actor{UserID: "operator-1", TenantID: "tenant-a", Role: auth.RoleOperator}
	manager := auth.Actor{UserID: "manager-1", TenantID: "tenant-a", Role: auth.RoleManager}
	customer := auth.Actor{UserID: "customer-1", TenantID: "tenant-a", Role: auth.RoleCustomer}

	assertIDs(t, visibleIDs(t, db, DomainOrders, operator), "order-1", "order-2")
	// manager-1 oversees room-1 only: order-2 sits in an unmanaged room.
	assertIDs(t, visibleIDs(t, db, DomainOrders, manager), "order-1")
	assertIDs(t, visibleIDs(t, db, DomainOrders, customer), "order-1")
}

func TestManagerSeesOwnOrdersOutsideManagedRooms(t *testing.T) {
	db := newVisibilityDatabase(t)
	seedTenant(t, db)
	seedRow(t, db, &Order{ID: "order-3", TenantID: "tenant-a", CustomerID: "manager-1", RoomID: "room-2", ProductID: "product-2", RowVersion: 1})

	manager := auth.Actor{UserID: "manager-1", TenantID: "tenant-a", Role: auth.RoleManager}
	assertIDs(t, visibleIDs(t, db, DomainOrders, manager), "order-1", "order-3")
}

func TestCommentVisibilityHidesInternalFromRestrictedRoles(t *testing.T) {
	db := newVisibilityDatabase(t)
	seedTenant(t, db)

	admin := auth.Actor{UserID: "admin-1", TenantID: "tenant-a", Role: auth.RoleAdministrator}
	manager := auth.Actor{UserID: "manager-1", TenantID: "tenant-a", Role: auth.RoleManager}
	customer := auth.Actor{UserID: "customer-1", TenantID: "tenant-a", Role: auth.RoleCustomer}

	assertIDs(t, visibleIDs(t, db, DomainComments, admin), "comment-1", "comment-2")
	assertIDs(t, visibleIDs(t, db, DomainComments, manager), "comment-1")
	assertIDs(t, visibleIDs(t, db, DomainComments, customer), "comment-1")
}

func TestAuthorizationVisibility(t *testing.T) {
	db := newVisibilityDatabase(t)
	seedTenant(t, db)

	manager := auth.Actor{UserID: "manager-1", TenantID: "tenant-a", Role: auth.RoleManager}
	otherManager := auth.Actor{UserID: "manager-2", TenantID: "tenant-a", Role: auth.RoleManager}
	customer := auth.Actor{UserID: "customer-1", TenantID: "tenant-a", Role: auth.RoleCustomer}

	assertIDs(t, visibleIDs(t, db, DomainRoomManagerAuthorizations, manager), "rma-1")
	assertIDs(t, visibleIDs(t, db, DomainRoomManagerAuthorizations, otherManager))
	assertIDs(t, visibleIDs(t, db, DomainRoomManagerAuthorizations, customer))
}

func TestUserVisibility(t *testing.T) {
	db := newVisibilityDatabase(t)
	seedTenant(t, db)

	manager := auth.Actor{UserID: "manager-1", TenantID: "tenant-a", Role: auth.RoleManager}
	customer := auth.Actor{UserID: "customer-1", TenantID: "tenant-a", Role: auth.RoleCustomer}

	// Self plus customers with orders in managed rooms: customer-2's order
	// sits in room-2, which manager-1 does not oversee.
	assertIDs(t, visibleIDs(t, db, DomainUsers, manager), "manager-1", "customer-1")
	assertIDs(t, visibleIDs(t, db, DomainUsers, customer), "customer-1")
}

func TestVisibilityScopesTenant(t *testing.T) {
	db := newVisibilityDatabase(t)
	seedTenant(t, db)

	admin := auth.Actor{UserID: "admin-1", TenantID: "tenant-a", Role: auth.RoleAdministrator}
	for _, id := range visibleIDs(t, db, DomainRooms, admin) {
		if id == "room-x" {
			t.Fatalf("tenant-b room leaked into tenant-a query")
		}
	}
	for _, id := range visibleIDs(t, db, DomainOrders, admin) {
		if id == "order-x" {
			t.Fatalf("tenant-b order leaked into tenant-a query")
		}
	}
}

func TestVisibilityRejectsUnknownRole(t *testing.T) {
	db := newVisibilityDatabase(t)

	_, err := VisibleMetadata(db, DomainRooms, auth.Actor{
		UserID:   "user-1",
		TenantID: "tenant-a",
		Role:     auth.Role("intern"),
	})
	if !errors.Is(err, auth.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestVisibilityRejectsUnknownDomain(t *testing.T) {
	db := newVisibilityDatabase(t)

	_, err := VisibleMetadata(db, Domain("ledgers"), auth.Actor{
		UserID:   "user-1",
		TenantID: "tenant-a",
		Role:     auth.RoleAdministrator,
	})
	if !errors.Is(err, ErrUnknownDomain) {
		t.Fatalf("expected ErrUnknownDomain, got %v", err)
	}
}

func TestLoadRowsScopesTenantAndIDs(t *testing.T) {
	db := newVisibilityDatabase(t)
	seedTenant(t, db)

	rows, err := LoadRows(db, DomainRooms, "tenant-a", []string{"room-1", "room-x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "room-1" {
		t.Fatalf("expected only tenant-a room-1, got %#v", rows)
	}

	empty, err := LoadRows(db, DomainRooms, "tenant-a", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no rows for empty id list, got %#v", empty)
	}
}

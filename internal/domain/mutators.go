package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/printhaus/backend/internal/auth"
	"gorm.io/gorm"
)

var (
	// ErrInvalidMutationArgs indicates a mutation payload that failed to
	// decode or validate. It is permanent: retrying the same payload fails
	// the same way.
	ErrInvalidMutationArgs = errors.New("domain: invalid mutation args")
	// ErrForbiddenMutation indicates the actor may not perform the mutation
	// on the addressed row even though the role table allows the mutation
	// name itself.
	ErrForbiddenMutation = errors.New("domain: forbidden mutation")
)

// TenantChannel and UserChannel name the realtime poke channels a mutation
// reports as affected.
func TenantChannel(tenantID string) string { return "tenant/" + tenantID }
func UserChannel(userID string) string     { return "user/" + userID }

// MutatorContext carries the side-effect dependencies handlers need beyond
// the transaction itself.
type MutatorContext struct {
	IDs IDProvider
	Now func() time.Time
}

func (c MutatorContext) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c MutatorContext) newID() (string, error) {
	if c.IDs == nil {
		return "", errors.New("domain: id provider required")
	}
	return c.IDs.NewID()
}

// Mutator binds a mutation name to the roles allowed to invoke it and the
// handler that applies it inside a push transaction. Handlers return the poke
// channels affected by the write.
type Mutator struct {
	Roles []auth.Role
	Apply func(tx *gorm.DB, actor auth.Actor, mctx MutatorContext, args json.RawMessage) ([]string, error)
}

var (
	adminOnly     = []auth.Role{auth.RoleAdministrator}
	adminOperator = []auth.Role{auth.RoleAdministrator, auth.RoleOperator}
	everyRole     = []auth.Role{auth.RoleAdministrator, auth.RoleOperator, auth.RoleManager, auth.RoleCustomer}
)

// Mutators returns the authoritative mutation registry: name, required roles,
// handler. The role table is the external policy contract the push protocol
// enforces before a handler runs.
func Mutators() map[string]Mutator {
	return map[string]Mutator{
		"createAnnouncement": {Roles: adminOperator, Apply: createAnnouncement},
		"updateAnnouncement": {Roles: adminOperator, Apply: updateAnnouncement},
		"deleteAnnouncement": {Roles: adminOperator, Apply: deleteAnnouncement},

		"createComment": {Roles: adminOperator, Apply: createComment},
		"updateComment": {Roles: adminOnly, Apply: updateComment},
		"deleteComment": {Roles: adminOnly, Apply: deleteComment},

		"createOrder": {Roles: everyRole, Apply: createOrder},
		"updateOrder": {Roles: adminOperator, Apply: updateOrder},
		"deleteOrder": {Roles: adminOperator, Apply: deleteOrder},

		"createProduct": {Roles: adminOperator, Apply: createProduct},
		"updateProduct": {Roles: adminOperator, Apply: updateProduct},
		"deleteProduct": {Roles: adminOperator, Apply: deleteProduct},

		"createRoom":  {Roles: adminOnly, Apply: createRoom},
		"updateRoom":  {Roles: adminOperator, Apply: updateRoom},
		"deleteRoom":  {Roles: adminOnly, Apply: deleteRoom},
		"restoreRoom": {Roles: adminOnly, Apply: restoreRoom},

		"createRoomManagerAuthorization": {Roles: adminOnly, Apply: createRoomManagerAuthorization},
		"deleteRoomManagerAuthorization": {Roles: adminOnly, Apply: deleteRoomManagerAuthorization},

		"updateUserRole": {Roles: adminOnly, Apply: updateUserRole},
		"deleteUser":     {Roles: adminOnly, Apply: deleteUser},
		"restoreUser":    {Roles: adminOnly, Apply: restoreUser},
	}
}

func decodeArgs(raw json.RawMessage, dest interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidMutationArgs)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMutationArgs, err)
	}
	return nil
}

func requireID(mctx MutatorContext, id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed != "" {
		return trimmed, nil
	}
	return mctx.newID()
}

type announcementArgs struct {
	ID      string `json:"id"`
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

func createAnnouncement(tx *gorm.DB, actor auth.Actor, mctx MutatorContext, raw json.RawMessage) ([]string, error) {
	var args announcementArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Content) == "" {
		return nil, fmt.Errorf("%w: announcement content required", ErrInvalidMutationArgs)
	}
	id, err := requireID(mctx, args.ID)
	if err != nil {
		return nil, err
	}
	row := Announcement{
		ID:         id,
		TenantID:   actor.TenantID,
		RoomID:     args.RoomID,
		Content:    args.Content,
		RowVersion: 1,
	}
	if err := createRow(tx, &row); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID)}, nil
}

func updateAnnouncement(tx *gorm.DB, actor auth.Actor, _ MutatorContext, raw json.RawMessage) ([]string, error) {
	var args announcementArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := versionedUpdate(tx, &Announcement{}, actor.TenantID, args.ID, map[string]interface{}{
		"content": args.Content,
		"room_id": args.RoomID,
	}); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID)}, nil
}

func deleteAnnouncement(tx *gorm.DB, actor auth.Actor, mctx MutatorContext, raw json.RawMessage) ([]string, error) {
	var args struct {
		ID string `json:"id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := softDelete(tx, &Announcement{}, actor.TenantID, args.ID, mctx.now()); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID)}, nil
}

type commentArgs struct {
	ID       string `json:"id"`
	OrderID  string `json:"orderId"`
	Content  string `json:"content"`
	Internal bool   `json:"internal"`
}

func createComment(tx *gorm.DB, actor auth.Actor, mctx MutatorContext, raw json.RawMessage) ([]string, error) {
	var args commentArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.OrderID) == "" || strings.TrimSpace(args.Content) == "" {
		return nil, fmt.Errorf("%w: comment order id and content required", ErrInvalidMutationArgs)
	}

	var order Order
	err := tx.Where("tenant_id = ? AND id = ?", actor.TenantID, args.OrderID).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: order %s", ErrRowNotFound, args.OrderID)
	} else if err != nil {
		return nil, err
	}

	id, err := requireID(mctx, args.ID)
	if err != nil {
		return nil, err
	}
	row := Comment{
		ID:         id,
		TenantID:   actor.TenantID,
		OrderID:    args.OrderID,
		AuthorID:   actor.UserID,
		Content:    args.Content,
		Internal:   args.Internal,
		RowVersion: 1,
	}
	if err := createRow(tx, &row); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID), UserChannel(order.CustomerID)}, nil
}

func updateComment(tx *gorm.DB, actor auth.Actor, _ MutatorContext, raw json.RawMessage) ([]string, error) {
	var args commentArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := versionedUpdate(tx, &Comment{}, actor.TenantID, args.ID, map[string]interface{}{
		"content":  args.Content,
		"internal": args.Internal,
	}); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID)}, nil
}

func deleteComment(tx *gorm.DB, actor auth.Actor, mctx MutatorContext, raw json.RawMessage) ([]string, error) {
	var args struct {
		ID string `json:"id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := softDelete(tx, &Comment{}, actor.TenantID, args.ID, mctx.now()); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID)}, nil
}

type orderArgs struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`
	RoomID     string `json:"roomId"`
	ProductID  string `json:"productId"`
	Notes      string `json:"notes"`
}

func createOrder(tx *gorm.DB, actor auth.Actor, mctx MutatorContext, raw json.RawMessage) ([]string, error) {
	var args orderArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.RoomID) == "" || strings.TrimSpace(args.ProductID) == "" {
		return nil, fmt.Errorf("%w: order room id and product id required", ErrInvalidMutationArgs)
	}

	customerID := strings.TrimSpace(args.CustomerID)
	if customerID == "" {
		customerID = actor.UserID
	}
	// Restricted roles can only order on their own behalf.
	if customerID != actor.UserID &&
		actor.Role != auth.RoleAdministrator && actor.Role != auth.RoleOperator {
		return nil, fmt.Errorf("%w: cannot create order for another customer", ErrForbiddenMutation)
	}

	id, err := requireID(mctx, args.ID)
	if err != nil {
		return nil, err
	}
	row := Order{
		ID:         id,
		TenantID:   actor.TenantID,
		CustomerID: customerID,
		RoomID:     args.RoomID,
		ProductID:  args.ProductID,
		Notes:      args.Notes,
		RowVersion: 1,
	}
	if err := createRow(tx, &row); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID), UserChannel(customerID)}, nil
}

func updateOrder(tx *gorm.DB, actor auth.Actor, _ MutatorContext, raw json.RawMessage) ([]string, error) {
	var args orderArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{"notes": args.Notes}
	if strings.TrimSpace(args.ProductID) != "" {
		updates["product_id"] = args.ProductID
	}
	if strings.TrimSpace(args.RoomID) != "" {
		updates["room_id"] = args.RoomID
	}
	if err := versionedUpdate(tx, &Order{}, actor.TenantID, args.ID, updates); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID)}, nil
}

func deleteOrder(tx *gorm.DB, actor auth.Actor, mctx MutatorContext, raw json.RawMessage) ([]string, error) {
	var args struct {
		ID string `json:"id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := softDelete(tx, &Order{}, actor.TenantID, args.ID, mctx.now()); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID)}, nil
}

type productArgs struct {
	ID     string `json:"id"`
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func publishStatusFrom(raw string) (PublishStatus, error) {
	switch PublishStatus(strings.TrimSpace(raw)) {
	case PublishStatusDraft, "":
		return PublishStatusDraft, nil
	case PublishStatusPublished:
		return PublishStatusPublished, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidMutationArgs, raw)
	}
}

func createProduct(tx *gorm.DB, actor auth.Actor, mctx MutatorContext, raw json.RawMessage) ([]string, error) {
	var args productArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Name) == "" || strings.TrimSpace(args.RoomID) == "" {
		return nil, fmt.Errorf("%w: product name and room id required", ErrInvalidMutationArgs)
	}
	status, err := publishStatusFrom(args.Status)
	if err != nil {
		return nil, err
	}
	id, err := requireID(mctx, args.ID)
	if err != nil {
		return nil, err
	}
	row := Product{
		ID:         id,
		TenantID:   actor.TenantID,
		RoomID:     args.RoomID,
		Name:       args.Name,
		Status:     status,
		RowVersion: 1,
	}
	if err := createRow(tx, &row); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID)}, nil
}

func updateProduct(tx *gorm.DB, actor auth.Actor, _ MutatorContext, raw json.RawMessage) ([]string, error) {
	var args productArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if strings.TrimSpace(args.Name) != "" {
		updates["name"] = args.Name
	}
	if strings.TrimSpace(args.Status) != "" {
		status, err := publishStatusFrom(args.Status)
		if err != nil {
			return nil, err
		}
		updates["status"] = status
	}
	if err := versionedUpdate(tx, &Product{}, actor.TenantID, args.ID, updates); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID)}, nil
}

func deleteProduct(tx *gorm.DB, actor auth.Actor, mctx MutatorContext, raw json.RawMessage) ([]string, error) {
	var args struct {
		ID string `json:"id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := softDelete(tx, &Product{}, actor.TenantID, args.ID, mctx.now()); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID)}, nil
}

type roomArgs struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Details string `json:"details"`
}

func createRoom(tx *gorm.DB, actor auth.Actor, mctx MutatorContext, raw json.RawMessage) ([]string, error) {
	var args roomArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Name) == "" {
		return nil, fmt.Errorf("%w: room name required", ErrInvalidMutationArgs)
	}
	status, err := publishStatusFrom(args.Status)
	if err != nil {
		return nil, err
	}
	id, err := requireID(mctx, args.ID)
	if err != nil {
		return nil, err
	}
	row := Room{
		ID:         id,
		TenantID:   actor.TenantID,
		Name:       args.Name,
		Status:     status,
		Details:    args.Details,
		RowVersion: 1,
	}
	if err := createRow(tx, &row); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID)}, nil
}

func updateRoom(tx *gorm.DB, actor auth.Actor, _ MutatorContext, raw json.RawMessage) ([]string, error) {
	var args roomArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{"details": args.Details}
	if strings.TrimSpace(args.Name) != "" {
		updates["name"] = args.Name
	}
	if strings.TrimSpace(args.Status) != "" {
		status, err := publishStatusFrom(args.Status)
		if err != nil {
			return nil, err
		}
		updates["status"] = status
	}
	if err := versionedUpdate(tx, &Room{}, actor.TenantID, args.ID, updates); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID)}, nil
}

func deleteRoom(tx *gorm.DB, actor auth.Actor, mctx MutatorContext, raw json.RawMessage) ([]string, error) {
	var args struct {
		ID string `json:"id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := softDelete(tx, &Room{}, actor.TenantID, args.ID, mctx.now()); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID)}, nil
}

func restoreRoom(tx *gorm.DB, actor auth.Actor, _ MutatorContext, raw json.RawMessage) ([]string, error) {
	var args struct {
		ID string `json:"id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := restoreRow(tx, &Room{}, actor.TenantID, args.ID); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID)}, nil
}

type roomManagerAuthorizationArgs struct {
	ID        string `json:"id"`
	RoomID    string `json:"roomId"`
	ManagerID string `json:"managerId"`
}

func createRoomManagerAuthorization(tx *gorm.DB, actor auth.Actor, mctx MutatorContext, raw json.RawMessage) ([]string, error) {
	var args roomManagerAuthorizationArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.RoomID) == "" || strings.TrimSpace(args.ManagerID) == "" {
		return nil, fmt.Errorf("%w: room id and manager id required", ErrInvalidMutationArgs)
	}
	id, err := requireID(mctx, args.ID)
	if err != nil {
		return nil, err
	}
	row := RoomManagerAuthorization{
		ID:         id,
		TenantID:   actor.TenantID,
		RoomID:     args.RoomID,
		ManagerID:  args.ManagerID,
		RowVersion: 1,
	}
	if err := createRow(tx, &row); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID), UserChannel(args.ManagerID)}, nil
}

func deleteRoomManagerAuthorization(tx *gorm.DB, actor auth.Actor, mctx MutatorContext, raw json.RawMessage) ([]string, error) {
	var args struct {
		ID string `json:"id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	var authz RoomManagerAuthorization
	err := tx.Where("tenant_id = ? AND id = ?", actor.TenantID, args.ID).Take(&authz).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: authorization %s", ErrRowNotFound, args.ID)
	} else if err != nil {
		return nil, err
	}
	if err := softDelete(tx, &RoomManagerAuthorization{}, actor.TenantID, args.ID, mctx.now()); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID), UserChannel(authz.ManagerID)}, nil
}

type userArgs struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func updateUserRole(tx *gorm.DB, actor auth.Actor, _ MutatorContext, raw json.RawMessage) ([]string, error) {
	var args userArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	role, err := auth.ParseRole(args.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMutationArgs, err)
	}
	if err := versionedUpdate(tx, &User{}, actor.TenantID, args.ID, map[string]interface{}{
		"role": role.String(),
	}); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID), UserChannel(args.ID)}, nil
}

func deleteUser(tx *gorm.DB, actor auth.Actor, mctx MutatorContext, raw json.RawMessage) ([]string, error) {
	var args struct {
		ID string `json:"id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := softDelete(tx, &User{}, actor.TenantID, args.ID, mctx.now()); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID), UserChannel(args.ID)}, nil
}

func restoreUser(tx *gorm.DB, actor auth.Actor, _ MutatorContext, raw json.RawMessage) ([]string, error) {
	var args struct {
		ID string `json:"id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := restoreRow(tx, &User{}, actor.TenantID, args.ID); err != nil {
		return nil, err
	}
	return []string{TenantChannel(actor.TenantID), UserChannel(args.ID)}, nil
}

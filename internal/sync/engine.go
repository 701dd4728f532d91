package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/printhaus/backend/internal/auth"
	"github.com/printhaus/backend/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// Notifier delivers best-effort, payload-less pokes to realtime subscribers.
// At-least-once: a dropped poke only delays the next pull.
type Notifier interface {
	Poke(channels []string)
}

type noOpNotifier struct{}

func (noOpNotifier) Poke([]string) {}

// EngineConfig wires the reconciliation engine's dependencies.
type EngineConfig struct {
	Database      *gorm.DB
	Logger        *zap.Logger
	Notifier      Notifier
	IDProvider    domain.IDProvider
	Clock         func() time.Time
	MaxTxAttempts int
	Mutators      map[string]domain.Mutator
}

// Engine orchestrates pull and push rounds. It holds no cache of row state:
// the relational store is the only shared mutable state, and every access
// runs inside a serializable transaction.
type Engine struct {
	db            *gorm.DB
	logger        *zap.Logger
	notifier      Notifier
	ids           domain.IDProvider
	clock         func() time.Time
	maxTxAttempts int
	mutators      map[string]domain.Mutator
}

// NewEngine constructs the engine, defaulting optional dependencies.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = noOpNotifier{}
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = domain.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	attempts := cfg.MaxTxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxTxAttempts
	}
	mutators := cfg.Mutators
	if mutators == nil {
		mutators = domain.Mutators()
	}
	return &Engine{
		db:            cfg.Database,
		logger:        logger,
		notifier:      notifier,
		ids:           ids,
		clock:         clock,
		maxTxAttempts: attempts,
		mutators:      mutators,
	}, nil
}

// loadClientGroup returns the stored group or a zero-version default owned by
// the actor. Groups are created lazily on first pull or push.
func loadClientGroup(tx *gorm.DB, actor auth.Actor, clientGroupID string) (ClientGroup, error) {
	var group ClientGroup
	err := tx.Where("tenant_id = ? AND id = ?", actor.TenantID, clientGroupID).
		Take(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ClientGroup{
			ID:         clientGroupID,
			TenantID:   actor.TenantID,
			UserID:     actor.UserID,
			CvrVersion: 0,
		}, nil
	}
	if err != nil {
		return ClientGroup{}, err
	}
	return group, nil
}

func upsertClientGroup(tx *gorm.DB, group ClientGroup) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}, {Name: "tenant_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"user_id":     group.UserID,
			"cvr_version": group.CvrVersion,
		}),
	}).Create(&group).Error
}

func loadClient(tx *gorm.DB, tenantID, clientID, clientGroupID string) (Client, error) {
	var client Client
	err := tx.Where("tenant_id = ? AND id = ?", tenantID, clientID).
		Take(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Client{
			ID:             clientID,
			TenantID:       tenantID,
			ClientGroupID:  clientGroupID,
			LastMutationID: 0,
		}, nil
	}
	if err != nil {
		return Client{}, err
	}
	return client, nil
}

func upsertClient(tx *gorm.DB, client Client) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}, {Name: "tenant_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"client_group_id":  client.ClientGroupID,
			"last_mutation_id": client.LastMutationID,
		}),
	}).Create(&client).Error
}

// enforceRBAC checks the actor's role against a mutation's required role set.
func enforceRBAC(actor auth.Actor, required []auth.Role) bool {
	for _, role := range required {
		if actor.Role == role {
			return true
		}
	}
	return false
}

func (e *Engine) logError(operation string, err error, fields ...zap.Field) {
	attrs := append([]zap.Field{zap.String("operation", operation), zap.Error(err)}, fields...)
	e.logger.Error("sync engine error", attrs...)
}

func ownershipError(actor auth.Actor, clientGroupID string) error {
	return fmt.Errorf("%w: user %s does not own client group %s",
		ErrUnauthorized, actor.UserID, clientGroupID)
}

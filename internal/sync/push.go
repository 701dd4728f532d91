package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/printhaus/backend/internal/auth"
	"github.com/printhaus/backend/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// pushVersion is the only protocol version this engine implements.
const pushVersion = 1

// Mutation is one client-submitted change. Ids are strictly increasing per
// client and assigned client-side; the engine only ever advances its
// per-client counter to ids it has durably applied.
type Mutation struct {
	ID       int64           `json:"id"`
	ClientID string          `json:"clientID"`
	Name     string          `json:"name"`
	Args     json.RawMessage `json:"args"`
}

// PushRequest is the wire shape of a mutation batch.
type PushRequest struct {
	PushVersion   int        `json:"pushVersion"`
	ClientGroupID string     `json:"clientGroupID"`
	Mutations     []Mutation `json:"mutations"`
}

// Push applies a batch of mutations, each inside its own retryable
// serializable transaction, in the order submitted. A single mutation's
// permanent failure does not abort the batch: the failing mutation is
// re-run in error mode, which skips its business logic but still advances
// the client's lastMutationId so the client stops resubmitting it. Outcomes
// reach the client on its next pull via lastMutationIDChanges.
func (e *Engine) Push(ctx context.Context, actor auth.Actor, request PushRequest) error {
	if request.PushVersion != pushVersion {
		return fmt.Errorf("%w: push version %d", ErrVersionNotSupported, request.PushVersion)
	}

	for _, mutation := range request.Mutations {
		channels, err := e.processMutation(ctx, actor, request.ClientGroupID, mutation, false)
		if err != nil {
			if isBatchFatal(err) {
				e.logError("sync.push", err,
					zap.Int64("mutation_id", mutation.ID),
					zap.String("client_id", mutation.ClientID))
				return err
			}

			e.logger.Warn("mutation failed, retrying in error mode",
				zap.Int64("mutation_id", mutation.ID),
				zap.String("client_id", mutation.ClientID),
				zap.String("mutation_name", mutation.Name),
				zap.Error(err))

			if _, retryErr := e.processMutation(ctx, actor, request.ClientGroupID, mutation, true); retryErr != nil {
				e.logError("sync.push", retryErr,
					zap.Int64("mutation_id", mutation.ID),
					zap.String("client_id", mutation.ClientID))
				return retryErr
			}
			continue
		}

		if len(channels) > 0 {
			e.notifier.Poke(channels)
		}
	}

	return nil
}

// isBatchFatal classifies errors that abort the remaining batch instead of
// being absorbed as a single mutation's permanent failure. Out-of-sequence
// mutations are client-retryable once the gap closes; configuration and
// retry-exhaustion errors are service-level.
func isBatchFatal(err error) bool {
	return errors.Is(err, ErrOutOfSequence) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrRetryExhausted) ||
		errors.Is(err, ErrClientStateNotFound) ||
		errors.Is(err, ErrUnauthorized) && !errors.Is(err, errMutationDenied)
}

// errMutationDenied marks an RBAC denial for one mutation, which is permanent
// for that mutation only and must not abort the rest of the batch.
var errMutationDenied = errors.New("mutation denied")

func (e *Engine) processMutation(ctx context.Context, actor auth.Actor, clientGroupID string, mutation Mutation, errorMode bool) ([]string, error) {
	var channels []string

	err := withSerializable(ctx, e.db, e.logger, e.maxTxAttempts, func(tx *gorm.DB) error {
		channels = nil

		group, err := loadClientGroup(tx, actor, clientGroupID)
		if err != nil {
			return err
		}
		if group.UserID != actor.UserID {
			return ownershipError(actor, clientGroupID)
		}

		client, err := loadClient(tx, actor.TenantID, mutation.ClientID, clientGroupID)
		if err != nil {
			return err
		}
		if client.ClientGroupID != clientGroupID {
			return fmt.Errorf("%w: client %s belongs to group %s",
				ErrClientStateNotFound, mutation.ClientID, client.ClientGroupID)
		}

		nextMutationID := client.LastMutationID + 1

		// Already durably applied: skip without re-applying side effects.
		// This is the dedup contract that makes push safe to replay.
		if mutation.ID < nextMutationID {
			e.logger.Debug("mutation already processed, skipping",
				zap.Int64("mutation_id", mutation.ID),
				zap.String("client_id", mutation.ClientID))
			return nil
		}
		if mutation.ID > nextMutationID {
			return fmt.Errorf("%w: mutation %d, expected %d",
				ErrOutOfSequence, mutation.ID, nextMutationID)
		}

		if !errorMode {
			mutator, ok := e.mutators[mutation.Name]
			if !ok {
				return fmt.Errorf("%w: unknown mutation %q", ErrConfiguration, mutation.Name)
			}
			if !enforceRBAC(actor, mutator.Roles) {
				return fmt.Errorf("%w: %w: role %s may not %s",
					ErrUnauthorized, errMutationDenied, actor.Role, mutation.Name)
			}

			mctx := domain.MutatorContext{IDs: e.ids, Now: e.clock}
			affected, err := mutator.Apply(tx, actor, mctx, mutation.Args)
			if err != nil {
				return err
			}
			channels = affected
		}

		if err := upsertClientGroup(tx, group); err != nil {
			return err
		}
		client.ClientGroupID = clientGroupID
		client.LastMutationID = nextMutationID
		return upsertClient(tx, client)
	})
	if err != nil {
		return nil, err
	}
	return channels, nil
}

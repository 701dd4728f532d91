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

// pullVersion is the only protocol version this engine implements. Unknown
// cookie shapes from other versions are never interpreted.
const pullVersion = 1

// cvrSnapshotHistory is how many trailing CVR snapshots are kept per client
// group. Older snapshots only matter to clients resuming from very stale
// cookies, which fall back to a full resync anyway.
const cvrSnapshotHistory = 10

// Cookie is the opaque token a client echoes back to resume sync from its
// last known point. Order is the CVR version the client last received.
type Cookie struct {
	Order int64  `json:"order"`
	CVRID string `json:"cvrID"`
}

// PullRequest is the wire shape of one reconciliation round request.
type PullRequest struct {
	PullVersion   int     `json:"pullVersion"`
	ClientGroupID string  `json:"clientGroupID"`
	Cookie        *Cookie `json:"cookie"`
}

// PatchOperation is one entry of the ordered patch a client applies atomically.
type PatchOperation struct {
	Op    string      `json:"op"`
	Key   string      `json:"key,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

// PullResponse carries the patch, the next cookie, and the mutation-id
// acknowledgements for clients in the pulling group.
type PullResponse struct {
	Patch                 []PatchOperation `json:"patch"`
	Cookie                int64            `json:"cookie"`
	LastMutationIDChanges map[string]int64 `json:"lastMutationIDChanges"`
}

type pullTxResult struct {
	hadPrior      bool
	nextVersion   int64
	diff          Diff
	rows          map[domain.Domain][]domain.Row
	clientChanges map[string]int64
}

// Pull executes one reconciliation round: load the prior CVR, recompute the
// visible set, diff, ship only what changed. The whole round after version
// validation runs inside a single serializable transaction; it either commits
// a new CVR snapshot or performs no write at all.
func (e *Engine) Pull(ctx context.Context, actor auth.Actor, request PullRequest) (*PullResponse, error) {
	if request.PullVersion != pullVersion {
		return nil, fmt.Errorf("%w: pull version %d", ErrVersionNotSupported, request.PullVersion)
	}

	var cookieOrder int64
	if request.Cookie != nil {
		cookieOrder = request.Cookie.Order
	}

	var result *pullTxResult
	err := withSerializable(ctx, e.db, e.logger, e.maxTxAttempts, func(tx *gorm.DB) error {
		result = nil

		prevRecord, hadPrior, err := loadPriorCVR(tx, actor.TenantID, request.ClientGroupID, request.Cookie)
		if err != nil {
			return err
		}
		baseCvr := prevRecord
		if !hadPrior {
			baseCvr = BaseCVR()
		}

		group, err := loadClientGroup(tx, actor, request.ClientGroupID)
		if err != nil {
			return err
		}
		if group.UserID != actor.UserID {
			return ownershipError(actor, request.ClientGroupID)
		}

		nextCvr := CVR{}
		for _, name := range domain.SyncedDomains() {
			metadata, err := domain.VisibleMetadata(tx, name, actor)
			if err != nil {
				return classifyConfiguration(err)
			}
			nextCvr[string(name)] = BuildEntries(metadata)
		}
		clients, err := visibleClients(tx, actor.TenantID, request.ClientGroupID)
		if err != nil {
			return err
		}
		nextCvr[ClientDomain] = BuildEntries(clients)

		diff := DiffCVR(baseCvr, nextCvr)
		if hadPrior && diff.IsEmpty() {
			return nil
		}

		rows := map[domain.Domain][]domain.Row{}
		for _, name := range domain.SyncedDomains() {
			puts := diff[string(name)].Puts
			if len(puts) == 0 {
				continue
			}
			loaded, err := domain.LoadRows(tx, name, actor.TenantID, puts)
			if err != nil {
				return err
			}
			rows[name] = loaded
		}

		// Changed clients need no re-read; their versions are already in
		// the next CVR.
		clientChanges := map[string]int64{}
		for _, clientID := range diff[ClientDomain].Puts {
			clientChanges[clientID] = nextCvr[ClientDomain][clientID]
		}

		nextVersion := group.CvrVersion
		if cookieOrder > nextVersion {
			nextVersion = cookieOrder
		}
		nextVersion++

		group.CvrVersion = nextVersion
		if err := upsertClientGroup(tx, group); err != nil {
			return err
		}

		encoded, err := json.Marshal(nextCvr)
		if err != nil {
			return err
		}
		if err := tx.Create(&ClientView{
			ClientGroupID: request.ClientGroupID,
			Version:       nextVersion,
			TenantID:      actor.TenantID,
			Record:        string(encoded),
		}).Error; err != nil {
			return err
		}
		if err := tx.Where(
			"client_group_id = ? AND tenant_id = ? AND version <= ?",
			request.ClientGroupID, actor.TenantID, nextVersion-cvrSnapshotHistory,
		).Delete(&ClientView{}).Error; err != nil {
			return err
		}

		result = &pullTxResult{
			hadPrior:      hadPrior,
			nextVersion:   nextVersion,
			diff:          diff,
			rows:          rows,
			clientChanges: clientChanges,
		}
		return nil
	})
	if err != nil {
		e.logError("sync.pull", err,
			zap.String("client_group_id", request.ClientGroupID),
			zap.String("tenant_id", actor.TenantID))
		return nil, err
	}

	// Empty diff against an existing CVR: no write happened, the cookie is
	// unchanged and no mutation ids are acknowledged.
	if result == nil {
		return &PullResponse{
			Patch:                 []PatchOperation{},
			Cookie:                cookieOrder,
			LastMutationIDChanges: map[string]int64{},
		}, nil
	}

	patch := buildPatch(result)
	return &PullResponse{
		Patch:                 patch,
		Cookie:                result.nextVersion,
		LastMutationIDChanges: result.clientChanges,
	}, nil
}

// loadPriorCVR fetches the snapshot named by the cookie. A supplied cookie
// whose snapshot has been pruned degrades to a full resync rather than an
// error: the patch will begin with a clear operation.
func loadPriorCVR(tx *gorm.DB, tenantID, clientGroupID string, cookie *Cookie) (CVR, bool, error) {
	if cookie == nil {
		return nil, false, nil
	}

	var view ClientView
	err := tx.Where(
		"client_group_id = ? AND tenant_id = ? AND version = ?",
		clientGroupID, tenantID, cookie.Order,
	).Take(&view).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var record CVR
	if err := json.Unmarshal([]byte(view.Record), &record); err != nil {
		return nil, false, fmt.Errorf("decode cvr snapshot: %w", err)
	}
	return record, true, nil
}

// buildPatch emits the clear-first invariant for a client with no baseline,
// then per domain the deletes before the puts. Clients apply the whole patch
// atomically, so cross-domain ordering carries no meaning.
func buildPatch(result *pullTxResult) []PatchOperation {
	patch := []PatchOperation{}
	if !result.hadPrior {
		patch = append(patch, PatchOperation{Op: "clear"})
	}
	for _, name := range domain.SyncedDomains() {
		entry := result.diff[string(name)]
		for _, id := range entry.Dels {
			patch = append(patch, PatchOperation{
				Op:  "del",
				Key: string(name) + "/" + id,
			})
		}
		for _, row := range result.rows[name] {
			patch = append(patch, PatchOperation{
				Op:    "put",
				Key:   string(name) + "/" + row.ID,
				Value: row.Value,
			})
		}
	}
	return patch
}

// classifyConfiguration folds unknown-domain and unknown-role errors into the
// engine's configuration class so callers surface them as fatal. Store errors
// pass through unchanged.
func classifyConfiguration(err error) error {
	if errors.Is(err, domain.ErrUnknownDomain) || errors.Is(err, auth.ErrUnknownRole) {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return err
}
